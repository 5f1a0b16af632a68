package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_IsByKind(t *testing.T) {
	err := outOfStock(3, "T-shirt M", 2)
	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, http.StatusConflict, err.Status)

	wrapped := fmt.Errorf("checkout: %w", err)
	assert.True(t, errors.Is(wrapped, ErrOutOfStock))
}

func TestHTTPError_IsByCode(t *testing.T) {
	dup := newError(KindConflict, "duplicate_line_item", "duplicate variant 1")
	assert.True(t, errors.Is(dup, ErrDuplicateLineItem))
	assert.True(t, errors.Is(dup, ErrConflict))
	assert.False(t, errors.Is(dup, ErrEntitlementAlreadyUsed))
}

func TestNewHTTPError_KindFromStatus(t *testing.T) {
	he, ok := AsHTTPError(NewHTTPError(http.StatusNotFound, "not found"))
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, he.Kind)

	he, _ = AsHTTPError(NewHTTPError(http.StatusTeapot, "?"))
	assert.Equal(t, KindInternal, he.Kind)
}

func TestWrapTxError(t *testing.T) {
	assert.Nil(t, wrapTxError(nil))

	cause := errors.New("connection reset")
	err := wrapTxError(cause)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.True(t, errors.Is(err, cause))

	he := validationError("bad")
	assert.Same(t, he, wrapTxError(he))
}
