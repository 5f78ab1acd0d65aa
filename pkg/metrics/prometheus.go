package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes signal pipeline metrics through Prometheus.
type Recorder struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	signalScore   *prometheus.GaugeVec
	signalStage   *prometheus.GaugeVec
	upstreamCalls *prometheus.CounterVec
	exports       *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the recorder's collectors on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_runs_total",
				Help: "Signal generation runs by result",
			},
			[]string{"result"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signaldesk_run_duration_seconds",
				Help:    "Duration of a signal generation run",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
		),
		signalScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signaldesk_signal_score",
				Help: "Latest score per symbol",
			},
			[]string{"symbol"},
		),
		signalStage: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signaldesk_signal_stage",
				Help: "Latest stage per symbol (1 when active)",
			},
			[]string{"symbol", "stage"},
		),
		upstreamCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_upstream_requests_total",
				Help: "Upstream market data requests",
			},
			[]string{"provider", "result"},
		),
		exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_exports_total",
				Help: "Signals exported to secondary backends",
			},
			[]string{"backend", "result"},
		),
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_refresh_jobs_total",
				Help: "Background refresh jobs by final status",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
	}
}

var stages = []string{"FULL", "MEDIUM", "SMALL", "NONE"}

// RecordRun records a finished run.
func (r *Recorder) RecordRun(ok bool, d time.Duration) {
	r.runs.WithLabelValues(result(ok)).Inc()
	r.runDuration.Observe(d.Seconds())
}

// RecordSignal records the latest score and stage for symbol.
func (r *Recorder) RecordSignal(symbol, stage string, score float64) {
	r.signalScore.WithLabelValues(symbol).Set(score)
	for _, s := range stages {
		v := 0.0
		if s == stage {
			v = 1
		}
		r.signalStage.WithLabelValues(symbol, s).Set(v)
	}
}

// RecordUpstream records one upstream call.
func (r *Recorder) RecordUpstream(provider string, ok bool) {
	r.upstreamCalls.WithLabelValues(provider, result(ok)).Inc()
}

// RecordExport records an export attempt.
func (r *Recorder) RecordExport(backend string, ok bool) {
	r.exports.WithLabelValues(backend, result(ok)).Inc()
}

// RecordRefresh records a refresh job reaching a final status.
func (r *Recorder) RecordRefresh(status string) {
	r.refreshes.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
