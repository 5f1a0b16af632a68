package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/rs-labo46/ec-fulfillment/internal/config"
	"github.com/rs-labo46/ec-fulfillment/internal/handler"
	"github.com/rs-labo46/ec-fulfillment/internal/metrics"
	"github.com/rs-labo46/ec-fulfillment/internal/validator"
)

// Deps はルーティングに必要な部品
type Deps struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Checkout       *handler.CheckoutHandler
	Orders         *handler.OrderHandler
	Cart           *handler.CartHandler
	Payments       *handler.PaymentHandler
	AdminOrders    *handler.AdminOrderHandler
	AdminInventory *handler.AdminInventoryHandler
	Health         *handler.HealthHandler
}

// New は echo を組み立てる（起動はしない）。テストからも使う。
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))
	if d.Config.FEURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{d.Config.FEURL},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}

	RegisterRoutes(e, d)
	return e
}

// Start は ctx が終わるまで待ち、終わったら処理中のリクエストを待って止める。
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
