package instrument

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus observer: per-kind job counts by outcome
// and a duration histogram.
type Metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics observer and registers its
// collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_jobs_total",
			Help: "Background jobs processed, by service kind and outcome",
		}, []string{"kind", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_job_duration_seconds",
			Help:    "Background job wall time in seconds, by service kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(m.jobsTotal)
	reg.MustRegister(m.jobDuration)

	return m
}

// Publish implements Observer.
func (m *Metrics) Publish(ctx context.Context, e Event) {
	m.jobsTotal.WithLabelValues(string(e.Kind), e.Outcome).Inc()
	m.jobDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration().Seconds())
}
