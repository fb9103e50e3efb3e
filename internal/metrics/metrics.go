// Package metrics provides Prometheus instrumentation for the SDK's
// background event pipeline (listener reconnects, router queue depth,
// MLS resync outcomes) and its outbound REST traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the SDK emits, bound to a private
// registry. A private registry (rather than prometheus.DefaultRegisterer)
// keeps an embedding process free to run its own default registry, and
// lets more than one App instance coexist in a test process.
type Metrics struct {
	registry *prometheus.Registry

	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	NotificationsProcessedTotal prometheus.Counter
	NotificationsDedupedTotal   prometheus.Counter
	ListenerReconnectsTotal     prometheus.Counter

	RouterQueueDepth *prometheus.GaugeVec

	KeyPackageFloorBreachesTotal prometheus.Counter
	MlsResyncTotal               *prometheus.CounterVec
}

// New creates a Metrics instance registered on a fresh private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BackendRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wiresdk_backend_requests_total",
			Help: "Total number of REST requests made to the Wire backend.",
		}, []string{"method", "path", "status"}),

		BackendRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiresdk_backend_request_duration_seconds",
			Help:    "Backend REST request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		NotificationsProcessedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wiresdk_notifications_processed_total",
			Help: "Total number of notifications routed to a handler.",
		}),

		NotificationsDedupedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wiresdk_notifications_deduped_total",
			Help: "Total number of notifications skipped as duplicates.",
		}),

		ListenerReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wiresdk_listener_reconnects_total",
			Help: "Total number of WebSocket reconnect attempts.",
		}),

		RouterQueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wiresdk_router_queue_depth",
			Help: "Current depth of each per-conversation event queue.",
		}, []string{"channel_key"}),

		KeyPackageFloorBreachesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wiresdk_keypackage_floor_breaches_total",
			Help: "Total number of times the key-package floor triggered replenishment.",
		}),

		MlsResyncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wiresdk_mls_resync_total",
			Help: "Total number of MLS epoch resync attempts, by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler returns an http.Handler exposing this instance's metrics in the
// Prometheus exposition format, for an embedding process to mount.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
