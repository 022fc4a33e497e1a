package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LoginSucceeded = "success"
	LoginFailed    = "failure"
	LoginLimited   = "rate_limited"
)

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	billsCreated    *prometheus.CounterVec
	billsDeleted    prometheus.Counter
	logins          *prometheus.CounterVec
	rateUpdates     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		billsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utility_bills_created_total",
			Help: "Bills created by service type.",
		}, []string{"service_type"}),
		billsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "utility_bills_deleted_total",
			Help: "Bills deleted by customers.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utility_logins_total",
			Help: "Login attempts by role and result.",
		}, []string{"role", "result"}),
		rateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utility_rate_updates_total",
			Help: "Charge changes by service type.",
		}, []string{"service_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utility_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "utility_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.billsCreated,
		m.billsDeleted,
		m.logins,
		m.rateUpdates,
		m.httpRequests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) BillCreated(serviceType string) {
	m.billsCreated.WithLabelValues(serviceType).Inc()
}

func (m *Metrics) BillDeleted() {
	m.billsDeleted.Inc()
}

func (m *Metrics) Login(role, result string) {
	m.logins.WithLabelValues(role, result).Inc()
}

func (m *Metrics) RateUpdated(serviceType string) {
	m.rateUpdates.WithLabelValues(serviceType).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware counts requests and observes their latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
