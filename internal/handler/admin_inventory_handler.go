package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

// 管理者の在庫操作（入庫・調整・台帳照合）
type AdminInventoryHandler struct {
	uc *usecase.InventoryUsecase
}

func NewAdminInventoryHandler(uc *usecase.InventoryUsecase) *AdminInventoryHandler {
	return &AdminInventoryHandler{uc: uc}
}

func (h *AdminInventoryHandler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/inventory/receive", h.receive)
	admin.POST("/inventory/adjust", h.adjust)
	admin.GET("/inventory/audit", h.audit)
}

func (h *AdminInventoryHandler) receive(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req usecase.ReceiveStockInput
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Receive(c.Request().Context(), adminID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminInventoryHandler) adjust(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req usecase.AdjustStockInput
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Adjust(c.Request().Context(), adminID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminInventoryHandler) audit(c echo.Context) error {
	variantID, err := strconv.ParseInt(c.QueryParam("variant_id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid variant_id")
	}
	locationID, err := strconv.ParseInt(c.QueryParam("location_id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid location_id")
	}

	out, err := h.uc.Audit(c.Request().Context(), variantID, locationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
