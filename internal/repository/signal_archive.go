package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgch "SignalDesk/pkg/clickhouse"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/util"
)

// SignalHistoryTable is the ClickHouse archive table.
const SignalHistoryTable = "signal_history"

const eventIDHeader = "event_id"

// SignalHistorySchema creates the archive table. Re-inserted events collapse
// on event_id.
var SignalHistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS signal_history (
		generated_at DateTime64(3, 'UTC'),
		symbol LowCardinality(String),
		stage LowCardinality(String),
		score Float64,
		price Float64,
		rsi_1h Float64,
		ema_50_1h Float64,
		ema_200_1h Float64,
		trend_4h LowCardinality(String),
		trend_1w LowCardinality(String),
		macro_badge LowCardinality(String),
		macro_score Float64,
		highlights Array(String),
		event_id String
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, generated_at, event_id)`,
}

const archiveColumns = "generated_at, symbol, stage, score, price, rsi_1h, ema_50_1h, ema_200_1h, trend_4h, trend_1w, macro_badge, macro_score, highlights, event_id"

// ClickHouseSignalArchive stores history records in ClickHouse.
type ClickHouseSignalArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseSignalArchive(ch *pkgch.Client) *ClickHouseSignalArchive {
	return &ClickHouseSignalArchive{db: ch.DB(), table: SignalHistoryTable}
}

// EventID identifies one history record across exports.
func EventID(r models.HistoryRecord) string {
	return r.Symbol + "-" + r.GeneratedAt
}

func (a *ClickHouseSignalArchive) StoreBatch(ctx context.Context, records []models.HistoryRecord) error {
	const chunkSize = 2000
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		q, args := buildArchiveInsert(a.table, records[start:end])
		if q == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", a.table, err)
		}
	}
	return nil
}

// Export satisfies SignalExporter so the archive can be the direct export backend.
func (a *ClickHouseSignalArchive) Export(ctx context.Context, records []models.HistoryRecord) error {
	return a.StoreBatch(ctx, records)
}

// Recent returns up to limit records newest-first. Empty symbol means all.
func (a *ClickHouseSignalArchive) Recent(ctx context.Context, symbol string, limit int) ([]models.HistoryRecord, error) {
	var (
		where string
		args  []interface{}
	)
	if symbol != "" {
		where = "WHERE symbol = ?"
		args = append(args, strings.ToUpper(symbol))
	}
	args = append(args, limit)
	q := fmt.Sprintf("SELECT %s FROM %s FINAL %s ORDER BY generated_at DESC LIMIT ?", archiveColumns, a.table, where)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", a.table, err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var (
			r       models.HistoryRecord
			ts      time.Time
			eventID string
		)
		if err := rows.Scan(&ts, &r.Symbol, &r.Stage, &r.Score, &r.Price, &r.RSI1H, &r.EMA50_1H, &r.EMA200_1H,
			&r.Trend4H, &r.Trend1W, &r.Macro.Badge, &r.Macro.MacroScore, &r.Highlights, &eventID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", a.table, err)
		}
		r.GeneratedAt = util.FormatTimestamp(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *ClickHouseSignalArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.
func (a *ClickHouseSignalArchive) Close() error { return nil }

func buildArchiveInsert(table string, records []models.HistoryRecord) (string, []interface{}) {
	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*14)
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		ts, ok := util.ParseTime(r.GeneratedAt)
		if !ok {
			continue
		}
		highlights := r.Highlights
		if highlights == nil {
			highlights = []string{}
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			ts.UTC(),
			r.Symbol,
			string(r.Stage),
			r.Score,
			r.Price,
			r.RSI1H,
			r.EMA50_1H,
			r.EMA200_1H,
			string(r.Trend4H),
			string(r.Trend1W),
			string(r.Macro.Badge),
			r.Macro.MacroScore,
			highlights,
			EventID(r),
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, archiveColumns, strings.Join(values, ",")), args
}

// BatchPublisher is the part of the Kafka producer the exporter needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher exports history records to a Kafka topic keyed by symbol.
type KafkaSignalPublisher struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaSignalPublisher(producer BatchPublisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Export(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(r.Symbol),
			Value:   r,
			Headers: map[string]string{eventIDHeader: EventID(r)},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ domrepo.SignalArchive  = (*ClickHouseSignalArchive)(nil)
	_ domrepo.SignalExporter = (*ClickHouseSignalArchive)(nil)
	_ domrepo.SignalExporter = (*KafkaSignalPublisher)(nil)
)
