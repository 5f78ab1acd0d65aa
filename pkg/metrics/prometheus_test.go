package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordRun(true, 2*time.Second)
	r.RecordRun(false, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))

	r.RecordSignal("BTC", "MEDIUM", 64.2)
	assert.Equal(t, 64.2, testutil.ToFloat64(r.signalScore.WithLabelValues("BTC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalStage.WithLabelValues("BTC", "MEDIUM")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.signalStage.WithLabelValues("BTC", "FULL")))

	r.RecordSignal("BTC", "FULL", 80)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.signalStage.WithLabelValues("BTC", "MEDIUM")))

	r.RecordUpstream("kraken", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.upstreamCalls.WithLabelValues("kraken", "error")))
}
