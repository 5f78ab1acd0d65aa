package usecase

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

// SignalRunner produces signals for a symbol request.
type SignalRunner interface {
	Run(ctx context.Context, symbols []string) ([]models.Signal, error)
}

// MacroSnapshotter serves the macro endpoint.
type MacroSnapshotter interface {
	Snapshot(ctx context.Context) (models.MacroResponse, error)
}

// RecordExporter receives history records after each save.
type RecordExporter interface {
	Process(ctx context.Context, records []models.HistoryRecord) error
}

// SignalService is the invocation surface over engine, store, export and feed.
type SignalService struct {
	engine        SignalRunner
	store         drepo.SignalStore
	macro         MacroSnapshotter
	exporter      RecordExporter
	feed          *SignalFeed
	exportTimeout time.Duration
	now           func() time.Time
	l             *applogger.Logger
}

// NewSignalService wires the service. exporter and feed may be nil.
func NewSignalService(engine SignalRunner, store drepo.SignalStore, macro MacroSnapshotter, exporter RecordExporter, feed *SignalFeed, l *applogger.Logger) *SignalService {
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalService{
		engine:        engine,
		store:         store,
		macro:         macro,
		exporter:      exporter,
		feed:          feed,
		exportTimeout: 10 * time.Second,
		now:           time.Now,
		l:             l.Component("signal_service"),
	}
}

// Run computes signals, persists them and returns the normalized result.
// Nothing is saved when the engine fails.
func (s *SignalService) Run(ctx context.Context, symbols []string) (models.SignalsResponse, error) {
	signals, err := s.engine.Run(ctx, symbols)
	if err != nil {
		return models.SignalsResponse{}, err
	}

	// computed signals are persisted even if the caller has gone away
	generatedAt, err := s.store.Save(context.WithoutCancel(ctx), signals)
	if err != nil {
		return models.SignalsResponse{}, err
	}

	resp := models.SignalsResponse{
		GeneratedAt: generatedAt,
		Signals:     models.NormalizeSignals(generatedAt, signals),
	}
	s.export(ctx, generatedAt, signals)
	if s.feed != nil {
		s.feed.Publish(resp)
	}
	return resp, nil
}

func (s *SignalService) export(ctx context.Context, generatedAt string, signals []models.Signal) {
	if s.exporter == nil || len(signals) == 0 {
		return
	}
	// the save already happened; a client disconnect must not abort export
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.exportTimeout)
	defer cancel()
	if err := s.exporter.Process(ectx, HistoryRecords(generatedAt, signals)); err != nil {
		s.l.Warn("signal export failed",
			applogger.String("generated_at", generatedAt),
			applogger.Error(err),
		)
	}
}

// Latest serves the stored snapshot without recomputation.
func (s *SignalService) Latest(ctx context.Context) (models.SignalsResponse, error) {
	return s.store.ReadLatestNormalized(ctx)
}

// History returns up to limit records newest-first.
func (s *SignalService) History(ctx context.Context, symbol string, limit int) ([]models.NormalizedSignal, error) {
	return s.store.ReadHistory(ctx, symbol, limit)
}

// Live returns the newest history record of every supported symbol.
func (s *SignalService) Live(ctx context.Context) (models.LiveResponse, error) {
	resp := models.LiveResponse{
		GeneratedAt: util.FormatTimestamp(s.now()),
		Symbols:     make(map[string]models.NormalizedSignal, len(SupportedSymbols)),
	}
	for _, sym := range SupportedSymbols {
		rows, err := s.store.ReadHistory(ctx, sym, 1)
		if err != nil {
			return models.LiveResponse{}, err
		}
		if len(rows) > 0 {
			resp.Symbols[sym] = rows[0]
		}
	}
	return resp, nil
}

// Macro returns the current macro context with its raw stats.
func (s *SignalService) Macro(ctx context.Context) (models.MacroResponse, error) {
	return s.macro.Snapshot(ctx)
}

// Rebroadcast pushes the stored snapshot to live viewers. Used after an
// out-of-process job wrote new signals.
func (s *SignalService) Rebroadcast(ctx context.Context) error {
	if s.feed == nil {
		return nil
	}
	resp, err := s.store.ReadLatestNormalized(ctx)
	if err != nil {
		return err
	}
	s.feed.Publish(resp)
	return nil
}

// Feed returns the live feed, or nil when streaming is disabled.
func (s *SignalService) Feed() *SignalFeed { return s.feed }
