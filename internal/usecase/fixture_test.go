package usecase_test

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/gateway"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/notify"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/repository/memory"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

// =====================
// 決済ゲートウェイのモック
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(gateway.PaymentResponse)
	return resp, args.Error(1)
}

func (m *GatewayMock) QueryStatus(ctx context.Context, orderCode string) (gateway.Callback, error) {
	args := m.Called(ctx, orderCode)
	cb, _ := args.Get(0).(gateway.Callback)
	return cb, args.Error(1)
}

func (m *GatewayMock) ParseWebhook(body []byte) (gateway.Callback, error) {
	args := m.Called(body)
	cb, _ := args.Get(0).(gateway.Callback)
	return cb, args.Error(1)
}

func (m *GatewayMock) ParseReturn(q url.Values) (gateway.Callback, error) {
	args := m.Called(q)
	cb, _ := args.Get(0).(gateway.Callback)
	return cb, args.Error(1)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// =====================
// テスト環境（memoryストア + 通知レコーダー）
// =====================

const (
	buyerID    int64 = 7
	otherBuyer int64 = 8
	adminID    int64 = 1
	locationA  int64 = 1
	locationB  int64 = 2
)

var testNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type env struct {
	store    *memory.Store
	rec      *notify.Recorder
	gw       *GatewayMock
	rt       usecase.Runtime
	ledger   *usecase.InventoryLedger
	redeemer *usecase.EntitlementRedeemer

	checkout   *usecase.CheckoutUsecase
	reconciler *usecase.PaymentReconciler
	orders     *usecase.OrderUsecase
	admin      *usecase.AdminOrderUsecase
	inventory  *usecase.InventoryUsecase
	cart       *usecase.CartUsecase

	seq int
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store: memory.NewStore(),
		rec:   notify.NewRecorder(),
		gw:    &GatewayMock{},
	}
	e.rt = usecase.Runtime{
		Clock:    fixedClock{testNow},
		Notifier: e.rec,
		Logger:   logging.Discard(),
	}
	// 在庫少の通知はテストのノイズになるので0以下のときだけ
	e.ledger = usecase.NewInventoryLedger(0, nil)
	e.redeemer = usecase.NewEntitlementRedeemer(fixedClock{testNow})

	e.checkout = usecase.NewCheckoutUsecase(e.store, e.ledger, e.redeemer, e.gw, e.rt)
	e.reconciler = usecase.NewPaymentReconciler(e.store, e.ledger, e.redeemer, e.gw, e.rt)
	e.orders = usecase.NewOrderUsecase(e.store, e.ledger, e.rt)
	e.admin = usecase.NewAdminOrderUsecase(e.store, e.ledger, e.rt)
	e.inventory = usecase.NewInventoryUsecase(e.store, e.ledger, e.rt)
	e.cart = usecase.NewCartUsecase(e.store)
	return e
}

// 価格 price、locationA に stock 個ある variant を作る
func (e *env) variant(price, stock int64) model.ProductVariant {
	e.seq++
	v := e.store.PutVariant(model.ProductVariant{
		ProductID: 100,
		SKU:       fmt.Sprintf("TS-%03d", e.seq),
		Name:      fmt.Sprintf("T-shirt %d", e.seq),
		Price:     price,
		IsActive:  true,
	})
	if stock > 0 {
		e.store.PutStock(v.ID, locationA, stock)
	}
	return v
}

func (e *env) voucherGrant(userID int64, rule model.DiscountRule) model.VoucherGrant {
	e.seq++
	v := e.store.PutVoucher(model.Voucher{Code: fmt.Sprintf("V-%03d", e.seq), DiscountRule: rule})
	return e.store.PutVoucherGrant(model.VoucherGrant{UserID: userID, VoucherID: v.ID})
}

func (e *env) couponGrant(userID int64, rule model.DiscountRule) model.CouponGrant {
	e.seq++
	c := e.store.PutCoupon(model.Coupon{Code: fmt.Sprintf("C-%03d", e.seq), DiscountRule: rule})
	return e.store.PutCouponGrant(model.CouponGrant{UserID: userID, CouponID: c.ID})
}

func (e *env) addToCart(t *testing.T, userID, variantID, qty int64) {
	t.Helper()
	_, err := e.cart.AddToCart(context.Background(), userID, usecase.AddCartInput{VariantID: variantID, Quantity: qty})
	require.NoError(t, err)
}

// gateway の決済開始を成功させる
func (e *env) payURLOK() {
	e.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(gateway.PaymentResponse{RequestID: "req-1", PayURL: "https://pay.example.test/p/1"}, nil)
}

func (e *env) order(t *testing.T, code string) model.Order {
	t.Helper()
	o, ok := e.store.OrderByCode(code)
	require.True(t, ok, "order %s not found", code)
	return o
}

func (e *env) placeGateway(t *testing.T, userID int64, in usecase.CheckoutInput) usecase.CheckoutResult {
	t.Helper()
	in.PaymentMethod = model.PaymentMethodGateway
	res, err := e.checkout.Checkout(context.Background(), userID, in)
	require.NoError(t, err)
	return res
}

func (e *env) placeCOD(t *testing.T, userID int64, in usecase.CheckoutInput) usecase.CheckoutResult {
	t.Helper()
	in.PaymentMethod = model.PaymentMethodCOD
	res, err := e.checkout.Checkout(context.Background(), userID, in)
	require.NoError(t, err)
	return res
}

func shipping() model.ShippingSnapshot {
	return model.ShippingSnapshot{
		RecipientName: "Taro Yamada",
		Phone:         "09012345678",
		PostalCode:    "150-0001",
		Province:      "Tokyo",
		Line1:         "1-2-3 Jingumae",
	}
}

func line(variantID, qty int64) usecase.CheckoutLineItem {
	return usecase.CheckoutLineItem{VariantID: variantID, Quantity: qty}
}

func input(total int64, items ...usecase.CheckoutLineItem) usecase.CheckoutInput {
	return usecase.CheckoutInput{
		LineItems:     items,
		Shipping:      shipping(),
		DeclaredTotal: total,
	}
}

func success(o usecase.CheckoutResult) gateway.Callback {
	return gateway.Callback{
		OrderCode:  o.OrderCode,
		RequestID:  "req-1",
		Amount:     o.TotalAmount,
		ResultCode: 0,
		Message:    "Successful.",
		TransID:    "4088878653",
	}
}

func failure(o usecase.CheckoutResult, code int) gateway.Callback {
	return gateway.Callback{
		OrderCode:  o.OrderCode,
		RequestID:  "req-1",
		Amount:     o.TotalAmount,
		ResultCode: code,
		Message:    "Transaction denied by user.",
	}
}

func countMovements(txns []model.InventoryTransaction, reason model.MovementReason) int {
	n := 0
	for _, t := range txns {
		if t.Reason == reason {
			n++
		}
	}
	return n
}
