package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, records []models.HistoryRecord) error
}

// ExportPipeline sits between the signal store and the export backend.
// It validates records, forwards them, and buffers batches the backend
// refused so a background loop can retry them.
type ExportPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	l          *applogger.Logger
	bufSize    int
	bufCh      chan []models.HistoryRecord
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	mu         sync.Mutex
	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*ExportPipeline)

// WithBufferSize sets how many failed batches are kept for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *ExportPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the retry delay range of the flush loop.
func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *ExportPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *ExportPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewExportPipeline creates a new pipeline.
func NewExportPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ExportPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &ExportPipeline{
		proc:       proc,
		metrics:    metrics,
		l:          applogger.Nop(),
		bufSize:    64,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan []models.HistoryRecord, p.bufSize)
	p.l = p.l.Component("export_pipeline")
	return p
}

// Start launches background flushing of buffered batches.
func (p *ExportPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *ExportPipeline) flushLoop(ctx context.Context) {
	defer close(p.doneCh)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.backoffMin
	b.MaxInterval = p.backoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case batch := <-p.bufCh:
			if err := p.proc.Process(ctx, batch); err != nil {
				p.metrics.RecordError("export_flush")
				wait := b.NextBackOff()
				p.l.Warn("buffered export failed",
					applogger.Int("records", len(batch)),
					applogger.Duration("retry_in", wait),
					applogger.Error(err),
				)
				select {
				case <-time.After(wait):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				// requeue if space; drop otherwise
				select {
				case p.bufCh <- batch:
				default:
					p.metrics.RecordError("export_buffer_drop")
				}
				continue
			}
			b.Reset()
		}
	}
}

// Stop stops the background flushing and waits for the loop to exit.
func (p *ExportPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Pending returns the number of buffered batches.
func (p *ExportPipeline) Pending() int { return len(p.bufCh) }

// Process validates records and forwards them downstream, buffering the
// batch when the backend fails.
func (p *ExportPipeline) Process(ctx context.Context, records []models.HistoryRecord) error {
	valid := make([]models.HistoryRecord, 0, len(records))
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			p.metrics.RecordError("export_validate")
			p.l.Warn("dropping invalid record", applogger.Error(err))
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return nil
	}

	if err := p.proc.Process(ctx, valid); err != nil {
		select {
		case p.bufCh <- valid:
		default:
			p.metrics.RecordError("export_buffer_full")
		}
		return fmt.Errorf("export pipeline downstream: %w", err)
	}
	return nil
}

func validateRecord(r models.HistoryRecord) error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if r.GeneratedAt == "" {
		return fmt.Errorf("generated_at empty for %s", r.Symbol)
	}
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %v out of range for %s", r.Score, r.Symbol)
	}
	return nil
}
