package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBMetrics holds Prometheus metrics for PostgreSQL queries.
type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
	ErrorsTotal   *prometheus.CounterVec
}

// NewDBMetrics creates and registers database metrics on the given registry.
func NewDBMetrics(reg prometheus.Registerer) *DBMetrics {
	m := &DBMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds, by statement kind.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"query"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total number of failed database queries, by statement kind.",
		}, []string{"query"}),
	}

	reg.MustRegister(m.QueryDuration, m.ErrorsTotal)
	return m
}
