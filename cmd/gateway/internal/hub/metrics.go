package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects hub-level counters. A nil *Metrics disables collection.
type Metrics struct {
	connectionsTotal    prometheus.Counter
	disconnectionsTotal prometheus.Counter
	evictionsTotal      prometheus.Counter
	ticksFannedOut      prometheus.Counter
	ticksDropped        prometheus.Counter
	fanoutLatency       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lightspeed_connections_total",
			Help: "Total number of accepted websocket connections",
		}),
		disconnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lightspeed_disconnections_total",
			Help: "Total number of closed websocket connections",
		}),
		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lightspeed_evictions_total",
			Help: "Connections force-closed by the slow-consumer policy",
		}),
		ticksFannedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "lightspeed_ticks_fanned_out_total",
			Help: "Tick deliveries enqueued across all connections",
		}),
		ticksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "lightspeed_ticks_dropped_total",
			Help: "Tick deliveries refused because a connection queue overflowed",
		}),
		fanoutLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lightspeed_fanout_latency_seconds",
			Help:    "Time to enqueue one tick on every subscriber",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connectionsTotal.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.disconnectionsTotal.Inc()
	}
}

func (m *Metrics) evicted() {
	if m != nil {
		m.evictionsTotal.Inc()
	}
}

func (m *Metrics) fannedOut() {
	if m != nil {
		m.ticksFannedOut.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.ticksDropped.Inc()
	}
}

func (m *Metrics) observeFanout(seconds float64) {
	if m != nil {
		m.fanoutLatency.Observe(seconds)
	}
}
