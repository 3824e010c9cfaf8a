package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push outcomes recorded by the fanout path.
const (
	PushDelivered = "delivered"
	PushOffline   = "offline"
	PushFailed    = "failed"
)

// MetricsCollector tracks performance metrics across the system. Each collector
// owns its registry so several can coexist in one process (tests).
type MetricsCollector struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	operations  *prometheus.HistogramVec
	pushes      *prometheus.CounterVec
	onlineUsers prometheus.Gauge
	sessions    prometheus.Gauge

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickchat",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by route.",
		}, []string{"route"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickchat",
			Name:      "errors_total",
			Help:      "Failures returned to callers, by error code.",
		}, []string{"code"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quickchat",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickchat",
			Name:      "pushes_total",
			Help:      "Live newMessage pushes, by outcome.",
		}, []string{"outcome"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickchat",
			Name:      "online_users",
			Help:      "Users with a registered live session.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickchat",
			Name:      "open_sessions",
			Help:      "Open websocket sessions, anonymous included.",
		}),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(mc.requests, mc.errors, mc.operations, mc.pushes, mc.onlineUsers, mc.sessions)
	return mc
}

func (mc *MetricsCollector) IncrementRequests(route string) {
	mc.requests.WithLabelValues(route).Inc()
}

func (mc *MetricsCollector) IncrementErrors(code string) {
	mc.errors.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operations.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordPush(outcome string) {
	mc.pushes.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) SetOnlineUsers(n int) {
	mc.onlineUsers.Set(float64(n))
}

func (mc *MetricsCollector) SetOpenSessions(n int) {
	mc.sessions.Set(float64(n))
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Registry exposes the underlying registry, mostly for tests.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the collector in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
