package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/gateway"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

func TestCheckout_COD_ReservesStockAndClearsCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	e.addToCart(t, buyerID, v.ID, 2)

	in := input(2300, line(v.ID, 2))
	in.ShippingFee = 300
	res := e.placeCOD(t, buyerID, in)

	assert.Equal(t, model.OrderStatusPending, res.Status)
	assert.Equal(t, model.PaymentStatusPending, res.PaymentStatus)
	assert.Equal(t, int64(2300), res.TotalAmount)
	assert.Empty(t, res.PayURL)

	// 在庫は即時に減り、販売の移動ログが注文コード付きで残る
	assert.Equal(t, int64(3), e.store.Stock(v.ID, locationA))
	txns := e.store.Transactions(v.ID, locationA)
	require.Len(t, txns, 2)
	assert.Equal(t, model.MovementExport, txns[1].MovementType)
	assert.Equal(t, model.ReasonSale, txns[1].Reason)
	assert.Equal(t, res.OrderCode, txns[1].Reference)

	o := e.order(t, res.OrderCode)
	assert.True(t, o.StockReserved)
	assert.Equal(t, int64(2000), o.Subtotal)

	detail, err := e.orders.Detail(ctx, buyerID, res.OrderID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, locationA, detail.Items[0].LocationID)
	assert.Equal(t, "T-shirt 1", detail.Items[0].Name)

	assert.Empty(t, e.store.CartItemsOf(buyerID))
	carts := e.store.CartsOf(buyerID)
	require.Len(t, carts, 1)
	assert.True(t, carts[0].CheckedOut())
	require.NotNil(t, carts[0].OrderID)
	assert.Equal(t, res.OrderID, *carts[0].OrderID)
	assert.Contains(t, e.rec.Events(), model.EventOrderCreated)
	e.gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCheckout_COD_RedeemsVoucherAndCoupon(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 500})
	cg := e.couponGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountPercent, Value: 10})

	// 小計2000 + 送料300 - (500 + 300の10%)
	in := input(1770, line(v.ID, 2))
	in.ShippingFee = 300
	in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
	in.Coupons = []usecase.CouponRef{{CouponID: cg.CouponID, ApplyScope: model.ApplyScopeShipping}}
	res := e.placeCOD(t, buyerID, in)

	o := e.order(t, res.OrderCode)
	assert.Equal(t, int64(530), o.Discount)

	used := e.store.VoucherGrant(vg.ID)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.OrderID)
	assert.Equal(t, res.OrderID, *used.OrderID)

	assert.True(t, e.store.CouponGrant(buyerID, cg.CouponID).IsUsed)
	usages := e.store.CouponUsages()
	require.Len(t, usages, 1)
	assert.Equal(t, res.OrderID, usages[0].OrderID)
}

func TestCheckout_DiscountCappedAtRemainingBase(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	// 送料200に対して500円引き→200円まで
	vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 500})

	in := input(1000, line(v.ID, 1))
	in.ShippingFee = 200
	in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeShipping}}
	res := e.placeCOD(t, buyerID, in)

	assert.Equal(t, int64(1000), res.TotalAmount)
}

func TestCheckout_DuplicateLineItem(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)

	in := input(2000, line(v.ID, 1), line(v.ID, 1))
	in.PaymentMethod = model.PaymentMethodCOD
	_, err := e.checkout.Checkout(context.Background(), buyerID, in)

	assert.True(t, errors.Is(err, usecase.ErrDuplicateLineItem))
	assert.Empty(t, e.store.Orders())
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
}

func TestCheckout_TotalMismatchRollsBackReservation(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})

	in := input(2000, line(v.ID, 2))
	in.PaymentMethod = model.PaymentMethodCOD
	in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
	_, err := e.checkout.Checkout(context.Background(), buyerID, in)

	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.KindValidation, he.Kind)
	assert.Equal(t, "total_mismatch", he.Code)
	assert.Equal(t, int64(1900), he.Details["computed_total"])

	// cod は build の中で確保済みだったが、ロールバックで元に戻る
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
	assert.Len(t, e.store.Transactions(v.ID, locationA), 1)
	assert.False(t, e.store.VoucherGrant(vg.ID).IsUsed)
	assert.Empty(t, e.store.Orders())
}

func TestCheckout_OutOfStockLeavesOtherLinesUntouched(t *testing.T) {
	e := newEnv(t)
	a := e.variant(1000, 5)
	b := e.variant(500, 1)

	in := input(3000, line(a.ID, 2), line(b.ID, 2))
	in.PaymentMethod = model.PaymentMethodCOD
	_, err := e.checkout.Checkout(context.Background(), buyerID, in)

	assert.True(t, errors.Is(err, usecase.ErrOutOfStock))
	he, _ := usecase.AsHTTPError(err)
	assert.Equal(t, b.ID, he.Details["variant_id"])
	assert.Equal(t, int64(5), e.store.Stock(a.ID, locationA))
	assert.Equal(t, int64(1), e.store.Stock(b.ID, locationA))
	assert.Empty(t, e.store.Orders())
}

func TestCheckout_StockMustFitOneLocation(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 2)
	e.store.PutStock(v.ID, locationB, 2)

	// 合計4あっても1拠点では2まで
	in := input(3000, line(v.ID, 3))
	in.PaymentMethod = model.PaymentMethodCOD
	_, err := e.checkout.Checkout(context.Background(), buyerID, in)
	assert.True(t, errors.Is(err, usecase.ErrOutOfStock))
}

// メモリストアの WithinTx は単位作業全体をロックするので、ここで確かめているのは
// 直列化された二つの注文の結果だけ。実DBでの在庫の競合は gorm_integration_test.go の
// TestGorm_ConcurrentReservations（TEST_DATABASE_URL が必要）で確かめる。
func TestCheckout_ConcurrentCODOnlyOneWins(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 3)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, uid := range []int64{buyerID, otherBuyer} {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			in := input(2000, line(v.ID, 2))
			in.PaymentMethod = model.PaymentMethodCOD
			_, err := e.checkout.Checkout(context.Background(), uid, in)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(uid)
	}
	wg.Wait()

	var ok, out int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, usecase.ErrOutOfStock):
			out++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, out)
	assert.Equal(t, int64(1), e.store.Stock(v.ID, locationA))
	assert.Len(t, e.store.Orders(), 1)
}

func TestCheckout_Gateway_OnlyChecksStock(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})
	e.addToCart(t, buyerID, v.ID, 2)
	e.gw.On("CreatePayment", mock.Anything, mock.MatchedBy(func(r gateway.PaymentRequest) bool {
		return r.Amount == 1900 && r.OrderCode != ""
	})).Return(gateway.PaymentResponse{RequestID: "req-42", PayURL: "https://pay.example.test/p/42"}, nil).Once()

	in := input(1900, line(v.ID, 2))
	in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
	res := e.placeGateway(t, buyerID, in)

	assert.Equal(t, "https://pay.example.test/p/42", res.PayURL)
	assert.Equal(t, model.OrderStatusPending, res.Status)
	assert.Equal(t, model.PaymentStatusPending, res.PaymentStatus)

	// 決済が確定するまで在庫・割引・カートは触らない
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
	assert.False(t, e.store.VoucherGrant(vg.ID).IsUsed)
	assert.Len(t, e.store.CartItemsOf(buyerID), 1)

	o := e.order(t, res.OrderCode)
	assert.False(t, o.StockReserved)
	assert.Equal(t, "req-42", o.PaymentRef)
	e.gw.AssertExpectations(t)
}

func TestCheckout_Gateway_InitiationFailureKeepsOrder(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	e.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(gateway.PaymentResponse{}, errors.New("dial tcp: connection refused")).Once()
	e.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(gateway.PaymentResponse{RequestID: "req-2", PayURL: "https://pay.example.test/p/2"}, nil).Once()

	in := input(1000, line(v.ID, 1))
	in.PaymentMethod = model.PaymentMethodGateway
	res, err := e.checkout.Checkout(context.Background(), buyerID, in)

	require.Error(t, err)
	assert.True(t, errors.Is(err, usecase.ErrGateway))
	he, _ := usecase.AsHTTPError(err)
	assert.Equal(t, res.OrderCode, he.Details["order_code"])

	o := e.order(t, res.OrderCode)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)

	// 決済のやり直し
	retry, err := e.checkout.RetryPayment(context.Background(), buyerID, res.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.test/p/2", retry.PayURL)
	assert.Equal(t, "req-2", e.order(t, res.OrderCode).PaymentRef)
	e.gw.AssertExpectations(t)
}

func TestRetryPayment_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 10)
	e.payURLOK()

	gw := e.placeGateway(t, buyerID, input(1000, line(v.ID, 1)))
	cod := e.placeCOD(t, buyerID, input(1000, line(v.ID, 1)))

	_, err := e.checkout.RetryPayment(ctx, otherBuyer, gw.OrderCode)
	assert.True(t, errors.Is(err, usecase.ErrOrderNotFound))

	_, err = e.checkout.RetryPayment(ctx, buyerID, cod.OrderCode)
	assert.True(t, errors.Is(err, usecase.ErrValidation))

	_, err = e.reconciler.Reconcile(ctx, usecase.SourceWebhook, success(gw))
	require.NoError(t, err)
	_, err = e.checkout.RetryPayment(ctx, buyerID, gw.OrderCode)
	assert.True(t, errors.Is(err, usecase.ErrInvalidStateTransition))
}

func TestCheckout_EntitlementChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 10)

	t.Run("other user's voucher is not found", func(t *testing.T) {
		vg := e.voucherGrant(otherBuyer, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})
		in := input(900, line(v.ID, 1))
		in.PaymentMethod = model.PaymentMethodCOD
		in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
		_, err := e.checkout.Checkout(ctx, buyerID, in)
		assert.True(t, errors.Is(err, usecase.ErrEntitlementNotFound))
	})

	t.Run("used voucher is rejected", func(t *testing.T) {
		vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100})
		in := input(900, line(v.ID, 1))
		in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
		e.placeCOD(t, buyerID, in)

		in.PaymentMethod = model.PaymentMethodCOD
		_, err := e.checkout.Checkout(ctx, buyerID, in)
		assert.True(t, errors.Is(err, usecase.ErrEntitlementAlreadyUsed))
	})

	t.Run("min order value", func(t *testing.T) {
		cg := e.couponGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100, MinOrderValue: 5000})
		in := input(900, line(v.ID, 1))
		in.PaymentMethod = model.PaymentMethodCOD
		in.Coupons = []usecase.CouponRef{{CouponID: cg.CouponID, ApplyScope: model.ApplyScopeOrder}}
		_, err := e.checkout.Checkout(ctx, buyerID, in)
		assert.True(t, errors.Is(err, usecase.ErrValidation))
	})

	t.Run("expired voucher", func(t *testing.T) {
		past := testNow.Add(-1)
		vg := e.voucherGrant(buyerID, model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100, ExpiresAt: &past})
		in := input(900, line(v.ID, 1))
		in.PaymentMethod = model.PaymentMethodCOD
		in.Vouchers = []usecase.VoucherRef{{GrantID: vg.ID, ApplyScope: model.ApplyScopeOrder}}
		_, err := e.checkout.Checkout(ctx, buyerID, in)
		assert.True(t, errors.Is(err, usecase.ErrValidation))
	})
}

func TestCheckout_InvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	inactive := e.store.PutVariant(model.ProductVariant{SKU: "OLD-1", Name: "old", Price: 100})
	e.store.PutStock(inactive.ID, locationA, 5)

	cases := []struct {
		name string
		in   func() usecase.CheckoutInput
		want error
	}{
		{"no line items", func() usecase.CheckoutInput { return input(0) }, usecase.ErrValidation},
		{"zero quantity", func() usecase.CheckoutInput { return input(0, line(v.ID, 0)) }, usecase.ErrValidation},
		{"unknown variant", func() usecase.CheckoutInput { return input(0, line(9999, 1)) }, usecase.ErrNotFound},
		{"inactive variant", func() usecase.CheckoutInput { return input(100, line(inactive.ID, 1)) }, usecase.ErrValidation},
		{"missing shipping", func() usecase.CheckoutInput {
			in := input(1000, line(v.ID, 1))
			in.Shipping.Line1 = " "
			return in
		}, usecase.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in()
			in.PaymentMethod = model.PaymentMethodCOD
			_, err := e.checkout.Checkout(ctx, buyerID, in)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	in := input(1000, line(v.ID, 1))
	in.PaymentMethod = "card"
	_, err := e.checkout.Checkout(ctx, buyerID, in)
	assert.True(t, errors.Is(err, usecase.ErrValidation))

	_, err = e.checkout.Checkout(ctx, 0, input(1000, line(v.ID, 1)))
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.KindUnauthorized, he.Kind)

	assert.Empty(t, e.store.Orders())
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
}
