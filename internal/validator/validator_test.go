package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineReq struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type checkoutReq struct {
	Items  []lineReq `json:"line_items" validate:"required,min=1,dive"`
	Method string    `json:"payment_method" validate:"required,oneof=cod gateway"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(&checkoutReq{Items: []lineReq{{VariantID: 1, Quantity: 2}}, Method: "cod"})
	assert.NoError(t, err)
	assert.Nil(t, Details(err))
}

func TestValidate_DetailsUseJSONNames(t *testing.T) {
	v := New()
	err := v.Validate(&checkoutReq{Items: []lineReq{{VariantID: 1, Quantity: -1}}, Method: "card"})
	require.Error(t, err)

	d := Details(err)
	assert.Equal(t, "gt=0", d["line_items[0].quantity"])
	assert.Equal(t, "oneof=cod gateway", d["payment_method"])
}

func TestValidate_EmptyItems(t *testing.T) {
	err := New().Validate(&checkoutReq{Method: "cod"})
	require.Error(t, err)
	assert.Equal(t, "required", Details(err)["line_items"])
}
