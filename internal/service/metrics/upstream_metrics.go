package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream holds per-endpoint latency and error vectors for outbound calls.
type Upstream struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

func NewUpstream(reg prometheus.Registerer) *Upstream {
	f := promauto.With(reg)
	return &Upstream{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "triggerdesk",
				Subsystem: "upstream",
				Name:      "latency_seconds",
				Help:      "Latency of upstream endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggerdesk",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Errors by upstream endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records one call. A nil receiver is a no-op.
func (u *Upstream) Observe(endpoint string, started time.Time, err error) {
	if u == nil {
		return
	}
	u.latency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		u.errors.WithLabelValues(endpoint).Inc()
	}
}
