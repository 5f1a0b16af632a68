package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/middleware"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
	"github.com/rs-labo46/ec-fulfillment/internal/validator"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		if he.Kind == usecase.KindInternal {
			// 原因は外に出さない
			return c.JSON(he.Status, ErrorResponse{Error: "internal error", Kind: string(he.Kind)})
		}
		return c.JSON(he.Status, ErrorResponse{
			Error:   he.Message,
			Kind:    string(he.Kind),
			Code:    he.Code,
			Details: he.Details,
		})
	}

	//500
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: string(usecase.KindInternal)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(usecase.KindValidation)})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Kind: string(usecase.KindUnauthorized)})
}

// bindAndValidate は JSON を読み、validate タグで検証する。
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return usecase.NewValidationError("invalid body", nil)
	}
	if err := c.Validate(req); err != nil {
		return usecase.NewValidationError("invalid request", validator.Details(err))
	}
	return nil
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	return middleware.UserID(c)
}

// パスの :id。1以上の整数でなければ false。
func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
