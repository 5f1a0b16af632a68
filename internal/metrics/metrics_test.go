package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Checkout("cod", "ok")
		m.Reconciled("webhook", "completed")
		m.Reservation(false)
		m.Notified("order.created", errors.New("x"))
		m.NotificationEnqueued("order.created", nil)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.Checkout("cod", "ok")
	m.Checkout("cod", "ok")
	m.Reservation(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Checkouts.WithLabelValues("cod", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reservations.WithLabelValues("out_of_stock")))
}

func TestNotificationCountersAreSeparate(t *testing.T) {
	m := New()
	m.NotificationEnqueued("order.created", nil)
	m.NotificationEnqueued("order.created", errors.New("queue full"))
	m.Notified("order.created", errors.New("broker down"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Enqueued.WithLabelValues("order.created", "queued")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Enqueued.WithLabelValues("order.created", "dropped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues("order.created", "error")))
	assert.Zero(t, testutil.ToFloat64(m.Notifications.WithLabelValues("order.created", "ok")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("/ping", "200")))

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), "fulfillment_http_requests_total")
}
