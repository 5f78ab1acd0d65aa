package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgkafka "SignalDesk/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// KafkaSignalsHandler consumes exported history records and archives them.
type KafkaSignalsHandler struct {
	topic   string
	archive domrepo.SignalArchive
	metrics domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, archive domrepo.SignalArchive, metrics domrepo.Metrics) *KafkaSignalsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaSignalsHandler{topic: topic, archive: archive, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// Handle decodes one history record. Malformed payloads are returned as
// errors so the consumer routes them to the DLQ.
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.HistoryRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode history record: %w", err)
	}
	if r.Symbol == "" || r.GeneratedAt == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("history record missing symbol or generated_at")
	}

	if err := h.archive.StoreBatch(ctx, []models.HistoryRecord{r}); err != nil {
		h.metrics.RecordExport("clickhouse", false)
		id := pkgkafka.HeaderFromContext(ctx, EventIDHeader)
		if id == "" {
			id = r.Symbol + "-" + r.GeneratedAt
		}
		return fmt.Errorf("archive %s: %w", id, err)
	}
	h.metrics.RecordExport("clickhouse", true)
	return nil
}

// EventIDHeader carries the export event id of a history record.
const EventIDHeader = "event_id"

// EventIDHook copies the event id header into the handler context.
func EventIDHook() pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, km kafka.Message) (context.Context, error) {
			return pkgkafka.WithHeader(ctx, EventIDHeader, pkgkafka.Header(km, EventIDHeader)), nil
		},
	}
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
