package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the server's operational gauges and counters.
type Metrics struct {
	registry *prometheus.Registry

	Connections  prometheus.Gauge
	Players      prometheus.Gauge
	PacketsIn    prometheus.Counter
	PacketsOut   prometheus.Counter
	ChunksLoaded prometheus.Counter
	LightQueue   prometheus.GaugeFunc
}

// newMetrics builds the metric set. lightQueue reports the lighting
// engine's backlog.
func newMetrics(lightQueue func() float64) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stonehall", Name: "connections",
		Help: "Live connections.",
	})
	m.Players = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stonehall", Name: "players_online",
		Help: "Logged-in players.",
	})
	m.PacketsIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stonehall", Name: "packets_in_total",
		Help: "Inbound packets dispatched to handlers.",
	})
	m.PacketsOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stonehall", Name: "packets_out_total",
		Help: "Outbound packets queued.",
	})
	m.ChunksLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stonehall", Name: "chunks_loaded_total",
		Help: "Chunk columns sent to players, counted once per player.",
	})
	m.LightQueue = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "stonehall", Name: "lighting_queue",
		Help: "Pending sky-light recompute items.",
	}, lightQueue)

	m.registry.MustRegister(m.Connections, m.Players, m.PacketsIn,
		m.PacketsOut, m.ChunksLoaded, m.LightQueue)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
