package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "kraken fetch failed", map[string]interface{}{"symbol": "BTCUSDT"}, "kraken.go:10")
	}
	c.AddLog("error", "kraken fetch failed", map[string]interface{}{"symbol": "ETHUSDT"}, "kraken.go:10")
	assert.Equal(t, 2, c.Pending())

	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topics[0])

	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["symbol"]] = e.Count
	}
	assert.Equal(t, 5, counts["BTCUSDT"])
	assert.Equal(t, 1, counts["ETHUSDT"])
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x:1")
	c.AddLog("error", "b", nil, "x:2")

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.batches) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestLoggerErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := (&Logger{zl: zerolog.New(&buf).Level(zerolog.DebugLevel)}).Component("engine")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	l.Error("run failed", Error(errors.New("boom")), String("symbol", "BTCUSDT"))
	l.Info("not collected")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	entry := pub.batches[0][0]
	assert.Equal(t, "run failed", entry.Message)
	assert.Equal(t, "engine", entry.Fields["component"])
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.Contains(t, buf.String(), `"component":"engine"`)
}
