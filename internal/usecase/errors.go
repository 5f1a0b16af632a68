package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindOutOfStock        ErrorKind = "out_of_stock"
	KindInvalidTransition ErrorKind = "invalid_state_transition"
	KindGateway           ErrorKind = "gateway_error"
	KindInvalidCallback   ErrorKind = "invalid_callback"
	KindInternal          ErrorKind = "internal_error"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:        http.StatusBadRequest,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindOutOfStock:        http.StatusConflict,
	KindInvalidTransition: http.StatusConflict,
	KindGateway:           http.StatusBadGateway,
	KindInvalidCallback:   http.StatusBadRequest,
	KindInternal:          http.StatusInternalServerError,
}

// usecaseが返すエラー。handlerはStatusとKindをそのままレスポンスにする。
type HTTPError struct {
	Status  int
	Kind    ErrorKind
	Code    string // duplicate_line_item など。無ければ空
	Message string
	Details map[string]any
	Err     error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Is は Kind（と Code があれば Code）で比較する。
// errors.Is(err, ErrOutOfStock) のように番兵と比べられる。
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Kind:    kindForStatus(status),
		Message: message,
	}
}

func newError(kind ErrorKind, code, message string) *HTTPError {
	return &HTTPError{
		Status:  kindStatus[kind],
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return KindGateway
	}
	return KindInternal
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 番兵
var (
	ErrValidation             = &HTTPError{Kind: KindValidation}
	ErrNotFound               = &HTTPError{Kind: KindNotFound}
	ErrConflict               = &HTTPError{Kind: KindConflict}
	ErrOutOfStock             = &HTTPError{Kind: KindOutOfStock}
	ErrInvalidStateTransition = &HTTPError{Kind: KindInvalidTransition}
	ErrGateway                = &HTTPError{Kind: KindGateway}
	ErrInvalidCallback        = &HTTPError{Kind: KindInvalidCallback}
	ErrInternal               = &HTTPError{Kind: KindInternal}

	ErrDuplicateLineItem      = &HTTPError{Kind: KindConflict, Code: "duplicate_line_item"}
	ErrEntitlementNotFound    = &HTTPError{Kind: KindNotFound, Code: "entitlement_not_found"}
	ErrEntitlementAlreadyUsed = &HTTPError{Kind: KindConflict, Code: "entitlement_already_used"}
	ErrOrderNotFound          = &HTTPError{Kind: KindNotFound, Code: "order_not_found"}
	ErrConcurrentUpdate       = &HTTPError{Kind: KindConflict, Code: "concurrent_update"}
)

func validationError(format string, args ...any) *HTTPError {
	return newError(KindValidation, "", fmt.Sprintf(format, args...))
}

func notFound(message string) *HTTPError {
	return newError(KindNotFound, "", message)
}

func orderNotFound() *HTTPError {
	return newError(KindNotFound, "order_not_found", "order not found")
}

func outOfStock(variantID int64, name string, requested int64) *HTTPError {
	e := newError(KindOutOfStock, "", fmt.Sprintf("variant %d (%s) is out of stock", variantID, name))
	e.Details = map[string]any{"variant_id": variantID, "requested": requested}
	return e
}

func invalidTransition(from, to string) *HTTPError {
	e := newError(KindInvalidTransition, "", fmt.Sprintf("cannot change order status from %s to %s", from, to))
	e.Details = map[string]any{"from": from, "to": to}
	return e
}

func invalidCallback(err error) *HTTPError {
	e := newError(KindInvalidCallback, "", "invalid gateway callback")
	e.Err = err
	return e
}

func gatewayError(err error) *HTTPError {
	e := newError(KindGateway, "", "payment gateway unavailable, retry payment later")
	e.Err = err
	return e
}

func concurrentUpdate() *HTTPError {
	return newError(KindConflict, "concurrent_update", "order was modified concurrently, retry")
}

// DBなど想定外の失敗。原因はErrに残してログで出す。
func dbError(err error) *HTTPError {
	e := newError(KindInternal, "", "db error")
	e.Err = err
	return e
}

func internalError(err error) *HTTPError {
	e := newError(KindInternal, "", "internal error")
	e.Err = err
	return e
}

// fnの中で返ったエラーをそのまま通す（HTTPErrorでなければdb error）
func wrapTxError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return dbError(err)
}

// NewValidationError はhandlerでの入力検証エラー用
func NewValidationError(message string, details map[string]any) error {
	e := newError(KindValidation, "", message)
	e.Details = details
	return e
}
