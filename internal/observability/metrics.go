package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total number of HTTP requests processed by the messenger.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	sessionsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_sessions_expired_total",
			Help: "Sessions ended by the idle timeout, by request channel.",
		},
		[]string{"channel"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Messages stored, split into new threads and replies.",
		},
		[]string{"kind"},
	)
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)
	auditPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_audit_publish_errors_total",
			Help: "Total number of audit publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		sessionsExpiredTotal,
		messagesSentTotal,
		loginsTotal,
		auditPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncSessionExpired(channel string) {
	sessionsExpiredTotal.WithLabelValues(channel).Inc()
}

func IncMessageSent(reply bool) {
	kind := "thread"
	if reply {
		kind = "reply"
	}
	messagesSentTotal.WithLabelValues(kind).Inc()
}

func IncLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

func IncAuditPublishError() {
	auditPublishErrorsTotal.Inc()
}
