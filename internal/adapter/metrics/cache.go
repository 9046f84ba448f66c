package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for the stats read-through cache.
type CacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Errors        prometheus.Counter
	Invalidations prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "hits_total",
			Help:      "Total number of stats cache hits.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "misses_total",
			Help:      "Total number of stats cache misses.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "errors_total",
			Help:      "Total number of cache reads or writes that failed and fell through to the store.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "invalidations_total",
			Help:      "Total number of stats cache invalidations.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Errors, m.Invalidations)
	return m
}
