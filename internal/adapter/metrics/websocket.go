package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the WebSocket transport.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	MessageSendDuration prometheus.Histogram
	PingFailures        prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of rejected WebSocket upgrades, by reason.",
		}, []string{"reason"}),
		MessageSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Time spent writing a single frame to a WebSocket connection.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of failed keepalive pings.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.RejectedConnections, m.MessageSendDuration, m.PingFailures)
	return m
}
