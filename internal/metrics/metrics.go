// Package metrics owns the Prometheus collectors for the HTTP surface, the
// session core and the chat gateway.  Collectors live on a private registry
// so tests can build as many instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authRejections       *prometheus.CounterVec
	wsConnections        prometheus.Gauge
	wsDropped            prometheus.Counter
	chatMessages         prometheus.Counter
	offlineNotifications *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Requests rejected by the session middleware, by reason.",
		}, []string{"reason"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Open chat websocket connections.",
		}),
		wsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_ws_dropped_total",
			Help: "Connections dropped because their send queue was full.",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages stored.",
		}),
		offlineNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_offline_notifications_total",
			Help: "Offline notifications published, by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.authRejections, m.wsConnections, m.wsDropped,
		m.chatMessages, m.offlineNotifications,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records RPS, latency and in-flight requests.  The path label is
// the route template (e.g. /chats/:id/messages) to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			return nil
		}
	}
}

func (m *Metrics) AuthRejected(reason string) { m.authRejections.WithLabelValues(reason).Inc() }
func (m *Metrics) ConnectionOpened()          { m.wsConnections.Inc() }
func (m *Metrics) ConnectionClosed()          { m.wsConnections.Dec() }
func (m *Metrics) ConnectionDropped()         { m.wsDropped.Inc() }
func (m *Metrics) MessageStored()             { m.chatMessages.Inc() }

func (m *Metrics) OfflineNotified(err error) {
	if err != nil {
		m.offlineNotifications.WithLabelValues("error").Inc()
		return
	}
	m.offlineNotifications.WithLabelValues("ok").Inc()
}
