package emmer

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RegistryCollector is a pull-model prometheus.Collector over the live
// conversation registry: rather than updating gauges on every state
// transition, it walks a Snapshot() at scrape time and derives metrics from
// the conversations it finds. Modeled on conniver's TCPInfoCollector, which
// pulls straight from its live connection map instead of mirroring state
// into counters.
type RegistryCollector struct {
	registry *Registry

	conversationsDesc *prometheus.Desc
	stateDesc         *prometheus.Desc
	retriesDesc       *prometheus.Desc
}

// NewRegistryCollector returns a collector for registry. Register it on a
// prometheus.Registry (or the default one) before serving /metrics.
func NewRegistryCollector(registry *Registry) *RegistryCollector {
	return &RegistryCollector{
		registry: registry,
		conversationsDesc: prometheus.NewDesc(
			"emmer_conversations", "Number of live conversations.", nil, nil,
		),
		stateDesc: prometheus.NewDesc(
			"emmer_conversation_state", "1 for the conversation's current state, labeled by host/port/state.",
			[]string{"host", "port", "state"}, nil,
		),
		retriesDesc: prometheus.NewDesc(
			"emmer_conversation_retries", "Retransmissions sent so far for a conversation.",
			[]string{"host", "port"}, nil,
		),
	}
}

func (c *RegistryCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.conversationsDesc
	descs <- c.stateDesc
	descs <- c.retriesDesc
}

// Metrics holds the plain push-style counters the maintainer and the
// conversation state machine update directly at the point of occurrence,
// as opposed to RegistryCollector's pull-model gauges collected at scrape
// time. prometheus.Counter is itself a prometheus.Collector, so each field
// registers on a prometheus.Registry individually.
type Metrics struct {
	Retransmits      prometheus.Counter
	Timeouts         prometheus.Counter
	Reaped           prometheus.Counter
	BytesTransferred prometheus.Counter
}

// NewMetrics returns a fresh, unregistered set of counters.
func NewMetrics() *Metrics {
	return &Metrics{
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emmer_retransmits_total",
			Help: "Packets the maintainer has resent to a stale conversation.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emmer_timeouts_total",
			Help: "Conversations dropped after exhausting their retry budget.",
		}),
		Reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emmer_reaped_total",
			Help: "Completed conversations removed from the registry.",
		}),
		BytesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emmer_bytes_transferred_total",
			Help: "Bytes sent in DATA blocks or received and reassembled from them, across all conversations.",
		}),
	}
}

// Collectors returns m's counters for bulk registration, e.g.
// registry.MustRegister(metrics.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Retransmits, m.Timeouts, m.Reaped, m.BytesTransferred}
}

func (c *RegistryCollector) Collect(metrics chan<- prometheus.Metric) {
	entries := c.registry.Snapshot()

	metrics <- prometheus.MustNewConstMetric(c.conversationsDesc, prometheus.GaugeValue, float64(len(entries)))

	for _, e := range entries {
		state, _, retries := e.Conversation.snapshot()
		host := e.Host
		port := strconv.Itoa(e.Port)

		metrics <- prometheus.MustNewConstMetric(
			c.stateDesc, prometheus.GaugeValue, 1, host, port, state.String(),
		)
		metrics <- prometheus.MustNewConstMetric(
			c.retriesDesc, prometheus.GaugeValue, float64(retries), host, port,
		)
	}
}
