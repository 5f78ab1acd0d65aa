package repository

import (
	"context"
	"encoding/json"
	"time"

	"SignalDesk/internal/domain/models"
)

// CandleSource fetches OHLC candles for a symbol at a granularity.
type CandleSource interface {
	Name() string
	FetchCandles(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error)
}

// MacroSource fetches market-wide statistics.
type MacroSource interface {
	FetchMacroStats(ctx context.Context) (models.MacroStats, error)
}

// SignalStore persists the latest snapshot and the append-only history.
type SignalStore interface {
	Save(ctx context.Context, signals []models.Signal) (generatedAt string, err error)
	ReadLatest(ctx context.Context) (models.LatestSnapshot, error)
	ReadLatestNormalized(ctx context.Context) (models.SignalsResponse, error)
	ReadHistory(ctx context.Context, symbol string, limit int) ([]models.NormalizedSignal, error)
}

// TradeJournal reads trade history and backtest output.
type TradeJournal interface {
	RecentTrades(ctx context.Context, symbol string, limit int) (models.RecentTradesResponse, error)
	BacktestSummary(ctx context.Context) (json.RawMessage, error)
	BacktestTrades(ctx context.Context, symbol string, limit int) (models.BacktestTradesResponse, error)
}

// SignalExporter ships history records to a secondary backend.
type SignalExporter interface {
	Export(ctx context.Context, records []models.HistoryRecord) error
	Close() error
}

// SignalArchive stores and queries exported history records.
type SignalArchive interface {
	StoreBatch(ctx context.Context, records []models.HistoryRecord) error
	Recent(ctx context.Context, symbol string, limit int) ([]models.HistoryRecord, error)
	Health(ctx context.Context) error
}

// User is an internal user record.
type User struct {
	ID       int64
	AuthID   string
	IsMaster bool
}

// Group is a user group with its screen allow-list.
type Group struct {
	ID             int64
	IsMaster       bool
	AllowedScreens []string
}

// PermissionDirectory answers identity and permission lookups.
type PermissionDirectory interface {
	UserByAuthID(ctx context.Context, authID string) (*User, error)
	GroupsForUser(ctx context.Context, userID int64) ([]Group, error)
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// SessionResolver maps a raw session token to an auth id.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (authID string, err error)
}

// JobResult is the single completion message of an out-of-process job.
type JobResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// JobRunner launches a job. Start fails only when the job cannot be launched;
// otherwise exactly one JobResult is delivered on the returned channel.
type JobRunner interface {
	Start(ctx context.Context) (<-chan JobResult, error)
}

// Metrics records pipeline metrics.
type Metrics interface {
	RecordRun(ok bool, d time.Duration)
	RecordSignal(symbol, stage string, score float64)
	RecordUpstream(provider string, ok bool)
	RecordExport(backend string, ok bool)
	RecordRefresh(status string)
	RecordError(kind string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordRun(bool, time.Duration) {}
func (NopMetrics) RecordSignal(string, string, float64) {}
func (NopMetrics) RecordUpstream(string, bool) {}
func (NopMetrics) RecordExport(string, bool) {}
func (NopMetrics) RecordRefresh(string) {}
func (NopMetrics) RecordError(string) {}
