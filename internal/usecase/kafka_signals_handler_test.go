package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
)

type fakeArchive struct {
	stored []models.HistoryRecord
	err    error
}

func (f *fakeArchive) StoreBatch(_ context.Context, records []models.HistoryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, records...)
	return nil
}

func (f *fakeArchive) Recent(context.Context, string, int) ([]models.HistoryRecord, error) {
	return f.stored, nil
}

func (f *fakeArchive) Health(context.Context) error { return nil }

func TestKafkaSignalsHandler(t *testing.T) {
	archive := &fakeArchive{}
	h := NewKafkaSignalsHandler("signaldesk.signals", archive, nil)
	assert.Equal(t, "signaldesk.signals", h.Topic())

	b, err := json.Marshal(models.HistoryRecord{GeneratedAt: "2024-01-01T00:00:00.000Z", Signal: models.Signal{Symbol: "BTCUSDT", Stage: models.StageSmall, Score: 51}})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, archive.stored, 1)
	assert.Equal(t, models.StageSmall, archive.stored[0].Stage)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", archive.stored[0].GeneratedAt)

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT"}`)))

	archive.err = errors.New("clickhouse down")
	err = h.Handle(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTCUSDT-2024-01-01T00:00:00.000Z")
}

func TestEventIDHookFeedsArchiveErrors(t *testing.T) {
	archive := &fakeArchive{err: errors.New("clickhouse down")}
	h := NewKafkaSignalsHandler("signaldesk.signals", archive, nil)
	km := kafka.Message{
		Value:   []byte(`{"symbol":"ETHUSDT","generated_at":"2024-01-01T00:00:00.000Z"}`),
		Headers: []kafka.Header{{Key: EventIDHeader, Value: []byte("evt-42")}},
	}

	ctx, err := EventIDHook().BeforeHandle(context.Background(), km)
	require.NoError(t, err)
	err = h.Handle(ctx, km.Value)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive evt-42")
}
