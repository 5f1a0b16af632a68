package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/repository"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

// admin は AuthJWT + RequireRole(ADMIN) 済みのグループ
func (h *AdminOrderHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/orders", h.list)
	admin.PUT("/orders/:id/status", h.updateStatus)
	admin.GET("/orders/:id/history", h.history)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid page")
		}
		page = p
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid limit")
		}
		limit = l
	}

	var userID *int64
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		userID = &id
	}

	fromPtr, ok := usecase.ParseDateTimeRFC3339(c.QueryParam("from"))
	if !ok {
		return badRequest(c, "invalid from")
	}
	toPtr, ok := usecase.ParseDateTimeRFC3339(c.QueryParam("to"))
	if !ok {
		return badRequest(c, "invalid to")
	}
	if fromPtr != nil && toPtr != nil && toPtr.Before(*fromPtr) {
		return badRequest(c, "to must not be before from")
	}

	out, err := h.uc.List(c.Request().Context(), repository.AdminOrderListFilter{
		Page:          page,
		Limit:         limit,
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("payment_status"),
		UserID:        userID,
		From:          fromPtr,
		To:            toPtr,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	orderID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.AdminUpdateOrderStatusInput
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	// 操作した管理者IDを取得（監査ログ用）
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.UpdateStatus(c.Request().Context(), adminID, orderID, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}


func (h *AdminOrderHandler) history(c echo.Context) error {
	orderID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	out, err := h.uc.History(c.Request().Context(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
