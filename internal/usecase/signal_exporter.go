package usecase

import (
	"context"
	"fmt"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
)

// SignalExporter ships history records to the configured secondary backend
// (kafka or clickhouse).
type SignalExporter struct {
	exp     drepo.SignalExporter
	metrics drepo.Metrics
	backend string
}

// NewSignalExporter creates an exporter. An empty backend or nil exporter
// disables export.
func NewSignalExporter(exp drepo.SignalExporter, metrics drepo.Metrics, backend string) *SignalExporter {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &SignalExporter{exp: exp, metrics: metrics, backend: backend}
}

// Enabled reports whether a backend is configured.
func (p *SignalExporter) Enabled() bool {
	return p != nil && p.exp != nil && p.backend != ""
}

// Backend returns the configured backend name.
func (p *SignalExporter) Backend() string { return p.backend }

// Process exports one batch of records.
func (p *SignalExporter) Process(ctx context.Context, records []models.HistoryRecord) error {
	if !p.Enabled() || len(records) == 0 {
		return nil
	}
	switch p.backend {
	case "kafka", "clickhouse":
	default:
		return fmt.Errorf("unknown export backend: %s", p.backend)
	}

	if err := p.exp.Export(ctx, records); err != nil {
		p.metrics.RecordExport(p.backend, false)
		return fmt.Errorf("export %d records to %s: %w", len(records), p.backend, err)
	}
	p.metrics.RecordExport(p.backend, true)
	return nil
}

// Close closes the underlying exporter.
func (p *SignalExporter) Close() {
	if p.Enabled() {
		_ = p.exp.Close()
	}
}

// HistoryRecords tags signals with the generated_at of their save.
func HistoryRecords(generatedAt string, signals []models.Signal) []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(signals))
	for i, s := range signals {
		out[i] = models.HistoryRecord{GeneratedAt: generatedAt, Signal: s}
	}
	return out
}
