package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	pkgkafka "SignalDesk/pkg/kafka"
)

func record(symbol, ts string) models.HistoryRecord {
	return models.HistoryRecord{GeneratedAt: ts, Signal: sig(symbol, models.StageMedium, 63)}
}

func TestBuildArchiveInsert(t *testing.T) {
	recs := []models.HistoryRecord{
		record("BTCUSDT", "2024-03-01T10:00:00.000Z"),
		record("", "2024-03-01T10:00:00.000Z"),
		record("ETHUSDT", "not a time"),
		record("XRPUSDT", "2024-03-01T10:00:00.000Z"),
	}

	q, args := buildArchiveInsert(SignalHistoryTable, recs)
	require.NotEmpty(t, q)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO signal_history ("))
	assert.Equal(t, 2, strings.Count(q, "(?,"))
	require.Len(t, args, 28)

	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), args[0])
	assert.Equal(t, "BTCUSDT", args[1])
	assert.Equal(t, "MEDIUM", args[2])
	assert.Equal(t, "BTCUSDT-2024-03-01T10:00:00.000Z", args[13])
	assert.Equal(t, "XRPUSDT", args[15])
}

func TestBuildArchiveInsertEmpty(t *testing.T) {
	q, args := buildArchiveInsert(SignalHistoryTable, nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

type fakeBatchPublisher struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (f *fakeBatchPublisher) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, messages...)
	return nil
}

func (f *fakeBatchPublisher) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSignalPublisherKeysBySymbol(t *testing.T) {
	fake := &fakeBatchPublisher{}
	pub := NewKafkaSignalPublisher(fake, "signaldesk.signals")

	require.NoError(t, pub.Export(context.Background(), nil))
	assert.Empty(t, fake.msgs)

	err := pub.Export(context.Background(), []models.HistoryRecord{
		record("BTCUSDT", "2024-03-01T10:00:00.000Z"),
		record("ETHUSDT", "2024-03-01T10:00:00.000Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "signaldesk.signals", fake.topic)
	require.Len(t, fake.msgs, 2)
	assert.Equal(t, []byte("ETHUSDT"), fake.msgs[1].Key)
	assert.Equal(t, "ETHUSDT-2024-03-01T10:00:00.000Z", fake.msgs[1].Headers["event_id"])

	b, err := json.Marshal(fake.msgs[0].Value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"generated_at":"2024-03-01T10:00:00.000Z"`)
	assert.Contains(t, string(b), `"symbol":"BTCUSDT"`)

	require.NoError(t, pub.Close())
	assert.True(t, fake.closed)
}
