package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminRequestsTotal, notificationsTotal) }

var (
	adminRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_api_requests_total",
			Help: "Admin API requests by route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications dispatched per channel and result.",
		},
		[]string{"channel", "result"}, // sent, failed, dropped
	)
)

func IncAdminRequest(method, route, status string) {
	adminRequestsTotal.WithLabelValues(method, route, status).Inc()
}

func IncNotification(channel, result string) {
	notificationsTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}
