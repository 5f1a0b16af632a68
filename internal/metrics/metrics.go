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

const namespace = "fulfillment"

type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	Checkouts       *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	Reservations    *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Enqueued        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkouts by payment method and result.",
		}, []string{"method", "result"}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Gateway signals applied, by source and outcome.",
		}, []string{"source", "outcome"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Conditional stock decrements by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered to the transport, by event and result.",
		}, []string{"event", "result"}),
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_enqueued_total",
			Help:      "Notifications handed to the publisher after commit, by event and result.",
		}, []string{"event", "result"}),
	}
	m.registry.MustRegister(
		m.Requests, m.LatencyMS, m.Checkouts, m.Reconciliations, m.Reservations, m.Notifications, m.Enqueued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// nilでも呼べるようにしておく（テストでは渡さない）

func (m *Metrics) Checkout(method, result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(method, result).Inc()
}

func (m *Metrics) Reconciled(source, outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Reservation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "out_of_stock"
	}
	m.Reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) Notified(event string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(event, result).Inc()
}

// NotificationEnqueued はコミット後にキューへ積めたかを数える。配送の成否は Notified。
func (m *Metrics) NotificationEnqueued(event string, err error) {
	if m == nil {
		return
	}
	result := "queued"
	if err != nil {
		result = "dropped"
	}
	m.Enqueued.WithLabelValues(event, result).Inc()
}

// Middleware はルート単位でリクエスト数とレイテンシを記録する。
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
			return err
		}
	}
}
