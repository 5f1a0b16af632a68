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

func TestCancel_CODReleasesStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	placed := e.placeCOD(t, buyerID, input(2000, line(v.ID, 2)))
	require.Equal(t, int64(3), e.store.Stock(v.ID, locationA))

	out, err := e.orders.Cancel(ctx, buyerID, placed.OrderID, usecase.CancelOrderInput{Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, out.Status)
	assert.Equal(t, model.PaymentStatusFailed, out.PaymentStatus)
	assert.Equal(t, "changed my mind", out.CancelReason)

	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
	txns := e.store.Transactions(v.ID, locationA)
	assert.Equal(t, 1, countMovements(txns, model.ReasonSaleRollback))
	assert.False(t, e.order(t, placed.OrderCode).StockReserved)

	audit, err := e.inventory.Audit(ctx, v.ID, locationA)
	require.NoError(t, err)
	assert.True(t, audit.Consistent)

	events := e.rec.Events()
	assert.Contains(t, events, model.EventOrderCancelled)
	assert.Contains(t, events, model.EventStockReleased)
	assert.NotContains(t, events, model.EventRefundRequired)

	// 2回目は遷移できない
	_, err = e.orders.Cancel(ctx, buyerID, placed.OrderID, usecase.CancelOrderInput{})
	assert.True(t, errors.Is(err, usecase.ErrInvalidStateTransition))
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
}

func TestCancel_PaidGatewayOrderNeedsRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	e.payURLOK()
	placed := e.placeGateway(t, buyerID, input(1000, line(v.ID, 1)))
	_, err := e.reconciler.Reconcile(ctx, usecase.SourceWebhook, success(placed))
	require.NoError(t, err)

	out, err := e.orders.Cancel(ctx, buyerID, placed.OrderID, usecase.CancelOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, out.Status)
	assert.Equal(t, model.PaymentStatusCompleted, out.PaymentStatus)
	assert.Equal(t, "cancelled by buyer", out.CancelReason)
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
	assert.Contains(t, e.rec.Events(), model.EventRefundRequired)
}

func TestCancel_UnpaidGatewayOrderHasNoStockToRelease(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	e.payURLOK()
	placed := e.placeGateway(t, buyerID, input(1000, line(v.ID, 1)))

	out, err := e.orders.Cancel(context.Background(), buyerID, placed.OrderID, usecase.CancelOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, out.PaymentStatus)
	assert.Equal(t, 0, countMovements(e.store.Transactions(v.ID, locationA), model.ReasonSaleRollback))

	// キャンセル後に届いた成功は反映しない
	res, err := e.reconciler.Reconcile(context.Background(), usecase.SourceWebhook, success(placed))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeNoop, res.Outcome)
	assert.Equal(t, int64(5), e.store.Stock(v.ID, locationA))
}

func TestCancel_ShippedOrderIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 5)
	placed := e.placeCOD(t, buyerID, input(1000, line(v.ID, 1)))

	for _, st := range []model.OrderStatus{model.OrderStatusConfirmed, model.OrderStatusProcessing, model.OrderStatusShipped} {
		_, err := e.admin.UpdateStatus(ctx, adminID, placed.OrderID, usecase.AdminUpdateOrderStatusInput{Status: string(st)})
		require.NoError(t, err)
	}

	_, err := e.orders.Cancel(ctx, buyerID, placed.OrderID, usecase.CancelOrderInput{})
	assert.True(t, errors.Is(err, usecase.ErrInvalidStateTransition))

	o := e.order(t, placed.OrderCode)
	assert.Equal(t, model.OrderStatusShipped, o.Status)
	assert.True(t, o.StockReserved)
	assert.Equal(t, int64(4), e.store.Stock(v.ID, locationA))
}

func TestCancel_OtherUsersOrderIsNotFound(t *testing.T) {
	e := newEnv(t)
	v := e.variant(1000, 5)
	placed := e.placeCOD(t, buyerID, input(1000, line(v.ID, 1)))

	_, err := e.orders.Cancel(context.Background(), otherBuyer, placed.OrderID, usecase.CancelOrderInput{})
	assert.True(t, errors.Is(err, usecase.ErrOrderNotFound))
	assert.Equal(t, model.OrderStatusPending, e.order(t, placed.OrderCode).Status)
}

func TestListMineAndDetail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.variant(1000, 10)
	first := e.placeCOD(t, buyerID, input(1000, line(v.ID, 1)))
	second := e.placeCOD(t, buyerID, input(2000, line(v.ID, 2)))
	e.placeCOD(t, otherBuyer, input(1000, line(v.ID, 1)))

	list, err := e.orders.ListMine(ctx, buyerID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, second.OrderCode, list.Items[0].Code)

	list, err = e.orders.ListMine(ctx, buyerID, 2, 1)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, first.OrderCode, list.Items[0].Code)

	// 範囲外は既定値
	list, err = e.orders.ListMine(ctx, buyerID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.Limit)

	detail, err := e.orders.Detail(ctx, buyerID, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), detail.TotalAmount)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, int64(2000), detail.Items[0].LineTotal)
	assert.Equal(t, "Tokyo", detail.Shipping.Province)

	_, err = e.orders.Detail(ctx, otherBuyer, second.OrderID)
	assert.True(t, errors.Is(err, usecase.ErrOrderNotFound))
	_, err = e.orders.Detail(ctx, buyerID, 0)
	assert.True(t, errors.Is(err, usecase.ErrValidation))
}
