package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	stage          *prometheus.GaugeVec
	goTotal        *prometheus.CounterVec
	snapshotsTotal *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerdesk_ticks_total",
				Help: "Total number of trade ticks consumed",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerdesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "triggerdesk_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triggerdesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stage: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "triggerdesk_trigger_stage",
				Help: "Current trigger stage (1 for the active stage label)",
			},
			[]string{"symbol", "stage"},
		),
		goTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerdesk_go_signals_total",
				Help: "GO rising edges emitted",
			},
			[]string{"symbol", "direction"},
		),
		snapshotsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerdesk_replay_snapshots_total",
				Help: "Replay snapshots written",
			},
			[]string{"kind", "result"},
		),
		alertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerdesk_alerts_total",
				Help: "Alert attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

var stages = []string{"IDLE", "ARMED", "TRIGGERED", "COOLDOWN"}

func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordStage sets the active stage gauge to 1 and the others to 0.
func (r *Recorder) RecordStage(symbol, stage string) {
	for _, s := range stages {
		v := 0.0
		if s == stage {
			v = 1
		}
		r.stage.WithLabelValues(symbol, s).Set(v)
	}
}

func (r *Recorder) RecordGo(symbol, direction string) {
	r.goTotal.WithLabelValues(symbol, direction).Inc()
}

func (r *Recorder) RecordSnapshot(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.snapshotsTotal.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordAlert(outcome string) {
	r.alertsTotal.WithLabelValues(outcome).Inc()
}
