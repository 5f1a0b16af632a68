package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

func (e *env) inTx(t *testing.T, fn func(r repo.TxRepos) error) error {
	t.Helper()
	return e.store.WithinTx(context.Background(), fn)
}

func TestRedeemVoucherGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})

	redeem := func(userID, orderID int64) error {
		return e.inTx(t, func(r repo.TxRepos) error {
			return e.redeemer.RedeemVoucherGrant(ctx, r, userID, g.ID, orderID)
		})
	}

	require.NoError(t, redeem(buyerID, 11))
	// 同じ注文での再実行は成功
	require.NoError(t, redeem(buyerID, 11))

	err := redeem(buyerID, 12)
	assert.True(t, errors.Is(err, usecase.ErrEntitlementAlreadyUsed))

	err = redeem(otherBuyer, 13)
	assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))

	err = e.inTx(t, func(r repo.TxRepos) error {
		return e.redeemer.RedeemVoucherGrant(ctx, r, buyerID, 9999, 11)
	})
	assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))

	used := e.store.VoucherGrant(g.ID)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)
	assert.Equal(t, testNow, *used.UsedAt)
	assert.Equal(t, int64(11), *used.OrderID)
}

func TestRedeemCouponGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.couponGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountPercent, Value: 5})

	redeem := func(orderID int64) error {
		return e.inTx(t, func(r repo.TxRepos) error {
			return e.redeemer.RedeemCouponGrant(ctx, r, buyerID, g.CouponID, orderID)
		})
	}

	require.NoError(t, redeem(21))
	require.NoError(t, redeem(21))
	assert.Len(t, e.store.CouponUsages(), 1)

	assert.True(t, errors.Is(redeem(22), usecase.ErrEntitlementAlreadyUsed))

	err := e.inTx(t, func(r repo.TxRepos) error {
		return e.redeemer.RedeemCouponGrant(ctx, r, otherBuyer, g.CouponID, 21)
	})
	assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))
}

func TestResolve(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})
	cg := e.couponGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})

	err := e.inTx(t, func(r repo.TxRepos) error {
		got, err := e.redeemer.ResolveVoucher(ctx, r, buyerID, vg.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.Voucher.Value)

		_, err = e.redeemer.ResolveVoucher(ctx, r, otherBuyer, vg.ID)
		assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))

		c, err := e.redeemer.ResolveCoupon(ctx, r, buyerID, cg.CouponID)
		require.NoError(t, err)
		assert.Equal(t, cg.CouponID, c.CouponID)

		_, err = e.redeemer.ResolveCoupon(ctx, r, otherBuyer, cg.CouponID)
		assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))
		return nil
	})
	require.NoError(t, err)
}
