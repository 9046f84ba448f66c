package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for the session relay actor.
type RelayMetrics struct {
	Connections       *prometheus.GaugeVec
	InboundMessages   *prometheus.CounterVec
	OutboundMessages  *prometheus.CounterVec
	DroppedSends      prometheus.Counter
	SlowPeersEvicted  prometheus.Counter
	BotOnline         prometheus.Gauge
	LivenessDemotions prometheus.Counter
	LastSweep         prometheus.Gauge
	HandlerPanics     prometheus.Counter
	CommandQueueDepth prometheus.Gauge
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Number of registered relay connections, by role.",
		}, []string{"role"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "inbound_messages_total",
			Help:      "Total number of inbound frames, by message type and outcome.",
		}, []string{"type", "outcome"}),
		OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "outbound_messages_total",
			Help:      "Total number of frames queued to peers, by message type.",
		}, []string{"type"}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_sends_total",
			Help:      "Total number of outbound frames dropped because the peer was gone or full.",
		}),
		SlowPeersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "slow_peers_evicted_total",
			Help:      "Total number of peers disconnected because their send buffer was full.",
		}),
		BotOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bot_online",
			Help:      "1 if the bot is considered online, 0 otherwise.",
		}),
		LivenessDemotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "liveness_demotions_total",
			Help:      "Total number of times the liveness sweep marked a stale bot offline.",
		}),
		LastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "last_liveness_sweep_timestamp_seconds",
			Help:      "Unix time of the most recent liveness sweep.",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "handler_panics_total",
			Help:      "Total number of recovered panics in relay message handlers.",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "command_queue_depth",
			Help:      "Current number of commands waiting for the relay actor.",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.InboundMessages,
		m.OutboundMessages,
		m.DroppedSends,
		m.SlowPeersEvicted,
		m.BotOnline,
		m.LivenessDemotions,
		m.LastSweep,
		m.HandlerPanics,
		m.CommandQueueDepth,
	)
	return m
}
