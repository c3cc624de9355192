package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private
// registry so multiple instances (tests included) never collide.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	ChatMessages prometheus.Counter
	Connections  prometheus.Gauge
}

// New builds and registers the service collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderchat",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})
	messages := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orderchat",
		Name:      "chat_messages_total",
		Help:      "Total number of chat messages persisted and broadcast.",
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orderchat",
		Name:      "chat_connections",
		Help:      "Currently registered websocket connections.",
	})
	registry.MustRegister(requests, messages, connections)
	return &Metrics{
		registry:     registry,
		HTTPRequests: requests,
		ChatMessages: messages,
		Connections:  connections,
	}
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
