package handler

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

// ゲートウェイからの通知（IPN）とリダイレクトの着地点。認証なし、署名で検証する。
type PaymentHandler struct {
	uc    *usecase.PaymentReconciler
	feURL string
}

func NewPaymentHandler(uc *usecase.PaymentReconciler, feURL string) *PaymentHandler {
	return &PaymentHandler{uc: uc, feURL: strings.TrimRight(feURL, "/")}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/payments/gateway")
	g.POST("/ipn", h.ipn)
	g.GET("/return", h.landing)
}

type ipnAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ipn は処理結果に関係なく200を返す。返さないとゲートウェイが再送し続ける。
func (h *PaymentHandler) ipn(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusOK, ipnAck{Received: true, Error: "unreadable body"})
	}

	res, err := h.uc.HandleWebhook(c.Request().Context(), body)
	if err != nil {
		ack := ipnAck{Received: true, Error: "internal error"}
		if he, ok := usecase.AsHTTPError(err); ok && he.Kind != usecase.KindInternal {
			ack.Error = string(he.Kind)
		}
		return c.JSON(http.StatusOK, ack)
	}
	return c.JSON(http.StatusOK, ipnAck{Received: true, Outcome: res.Outcome})
}

// landing は結果ページへリダイレクトする。確定結果は照会で取り直す。
func (h *PaymentHandler) landing(c echo.Context) error {
	res, err := h.uc.HandleReturn(c.Request().Context(), c.QueryParams())

	q := url.Values{}
	q.Set("order_code", res.OrderCode)
	switch {
	case err != nil:
		q.Set("result", "error")
		if he, ok := usecase.AsHTTPError(err); ok {
			q.Set("kind", string(he.Kind))
		}
	default:
		q.Set("result", res.Outcome)
		if res.Status != "" {
			q.Set("status", string(res.Status))
		}
	}
	return c.Redirect(http.StatusFound, h.feURL+"/checkout/result?"+q.Encode())
}
