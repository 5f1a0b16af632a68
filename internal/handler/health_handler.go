package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger はDBの疎通確認。memoryストアなら nil。
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	ping Pinger
}

func NewHealthHandler(ping Pinger) *HealthHandler {
	return &HealthHandler{ping: ping}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
}

type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

func (h *HealthHandler) health(c echo.Context) error {
	if h.ping == nil {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", DB: "none"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", DB: "down"})
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", DB: "up"})
}
