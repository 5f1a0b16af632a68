package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

func TestCart_AddMergesSameVariant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.store.PutVariant(model.ProductVariant{SKU: "TS-SALE", Name: "T-shirt sale", Price: 1000, DiscountedPrice: 800, IsActive: true})
	e.store.PutStock(v.ID, locationA, 5)

	_, err := e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: v.ID, Quantity: 1})
	require.NoError(t, err)
	out, err := e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: v.ID, Quantity: 2})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(3), out.Items[0].Quantity)
	assert.Equal(t, int64(800), out.Items[0].Price)
	assert.Equal(t, int64(2400), out.Total)

	// 合計で在庫を超える
	_, err = e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: v.ID, Quantity: 3})
	assert.True(t, errors.Is(err, usecase.ErrOutOfStock))
}

func TestCart_UpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	e.addToCart(t, buyerID, v.ID, 1)
	itemID := e.store.CartItemsOf(buyerID)[0].ID

	out, err := e.cart.UpdateCartItem(ctx, buyerID, itemID, usecase.UpdateCartItemInput{Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Items[0].Quantity)

	_, err = e.cart.UpdateCartItem(ctx, buyerID, itemID, usecase.UpdateCartItemInput{Quantity: 6})
	assert.True(t, errors.Is(err, usecase.ErrOutOfStock))

	// 他人の明細は見えない
	_, err = e.cart.UpdateCartItem(ctx, otherBuyer, itemID, usecase.UpdateCartItemInput{Quantity: 1})
	assert.True(t, errors.Is(err, usecase.ErrNotFound))
	_, err = e.cart.DeleteCartItem(ctx, otherBuyer, itemID)
	assert.True(t, errors.Is(err, usecase.ErrNotFound))

	out, err = e.cart.DeleteCartItem(ctx, buyerID, itemID)
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Zero(t, out.Total)
}

func TestCart_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	empty, err := e.cart.GetCart(ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	_, err = e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: 0, Quantity: 1})
	assert.True(t, errors.Is(err, usecase.ErrValidation))
	_, err = e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: 12345, Quantity: 1})
	assert.True(t, errors.Is(err, usecase.ErrNotFound))

	inactive := e.store.PutVariant(model.ProductVariant{SKU: "OLD", Name: "old", Price: 100})
	e.store.PutStock(inactive.ID, locationA, 5)
	_, err = e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: inactive.ID, Quantity: 1})
	assert.True(t, errors.Is(err, usecase.ErrValidation))

	_, err = e.cart.GetCart(ctx, 0)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.KindUnauthorized, he.Kind)
}

func TestCart_NewCartAfterCheckout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	e.addToCart(t, buyerID, v.ID, 1)
	oldItem := e.store.CartItemsOf(buyerID)[0].ID
	e.placeCOD(t, buyerID, input(1000, line(v.ID, 1)))

	// 確定済みカートの明細は触れない
	_, err := e.cart.UpdateCartItem(ctx, buyerID, oldItem, usecase.UpdateCartItemInput{Quantity: 2})
	assert.True(t, errors.Is(err, usecase.ErrNotFound))

	out, err := e.cart.AddToCart(ctx, buyerID, usecase.AddCartInput{VariantID: v.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.NotEqual(t, oldItem, out.Items[0].ID)
	assert.Len(t, e.store.CartsOf(buyerID), 2)
}
