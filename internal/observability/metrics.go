package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	NavigationDecisions *prometheus.CounterVec
	SessionEvents       *prometheus.CounterVec
	BroadcastDeliveries *prometheus.CounterVec
	RouterRequests      *prometheus.CounterVec
	AllowedTabs         prometheus.Gauge
	PendingEntries      prometheus.Gauge
	WSMessages          *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		NavigationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_decisions_total",
			Help:      "Navigation interceptor decisions by outcome.",
		}, []string{"decision"}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		BroadcastDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Per-tab broadcast delivery outcomes.",
		}, []string{"outcome"}),
		RouterRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_requests_total",
			Help:      "Message router requests by kind and result.",
		}, []string{"kind", "result"}),
		AllowedTabs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allowed_tabs",
			Help:      "Tabs currently permitted under the active session.",
		}),
		PendingEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_navigations",
			Help:      "Deferred navigations awaiting intention capture.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by channel and direction.",
		}, []string{"channel", "direction"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
