// Package metrics holds the prometheus collectors shared by the transports,
// the credential service and the background workers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_auth_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_auth_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthOperationsTotal counts credential operations by outcome tag.
	AuthOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_auth_operations_total",
			Help: "Credential operations",
		},
		[]string{"operation", "scope", "outcome"},
	)

	// TenantConnections tracks open tenant store handles.
	TenantConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_auth_tenant_connections_open",
			Help: "Open tenant store connections",
		},
	)

	// SocketConnections tracks live websocket connections by namespace.
	SocketConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenant_auth_socket_connections_active",
			Help: "Active socket connections",
		},
		[]string{"namespace"},
	)

	// OutboxTasksTotal counts outbox deliveries by kind and outcome.
	OutboxTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_auth_outbox_tasks_total",
			Help: "Outbox task attempts",
		},
		[]string{"kind", "outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the visit limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_auth_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthOperationsTotal,
		TenantConnections,
		SocketConnections,
		OutboxTasksTotal,
		RateLimitRejectedTotal,
	)
}
