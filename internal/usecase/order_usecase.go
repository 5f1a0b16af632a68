package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// OrderUsecase は購入者向けの注文参照とキャンセル
type OrderUsecase struct {
	tx     repo.TransactionManager
	ledger *InventoryLedger
	rt     Runtime
}

func NewOrderUsecase(tx repo.TransactionManager, ledger *InventoryLedger, rt Runtime) *OrderUsecase {
	return &OrderUsecase{tx: tx, ledger: ledger, rt: rt.withDefaults()}
}

type OrderItemOutput struct {
	ID              int64  `json:"id"`
	VariantID       int64  `json:"variant_id"`
	LocationID      int64  `json:"location_id"`
	Name            string `json:"name"`
	Attributes      string `json:"attributes"`
	ImageURL        string `json:"image_url"`
	UnitPrice       int64  `json:"unit_price"`
	DiscountedPrice int64  `json:"discounted_price"`
	Quantity        int64  `json:"quantity"`
	LineTotal       int64  `json:"line_total"`
}

type OrderOutput struct {
	ID            int64                  `json:"id"`
	Code          string                 `json:"code"`
	UserID        int64                  `json:"user_id"`
	Status        model.OrderStatus      `json:"status"`
	PaymentMethod model.PaymentMethod    `json:"payment_method"`
	PaymentStatus model.PaymentStatus    `json:"payment_status"`
	Shipping      model.ShippingSnapshot `json:"shipping"`
	Subtotal      int64                  `json:"subtotal"`
	ShippingFee   int64                  `json:"shipping_fee"`
	Discount      int64                  `json:"discount"`
	TotalAmount   int64                  `json:"total_amount"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Items         []OrderItemOutput      `json:"items"`
	Vouchers      []model.OrderVoucher   `json:"vouchers,omitempty"`
	Coupons       []model.OrderCoupon    `json:"coupons,omitempty"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type CancelOrderInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListMine は自分の注文一覧（新しい順）
func (u *OrderUsecase) ListMine(ctx context.Context, userID int64, page, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return dbError(err)
		}
		out.Total = total
		out.Items, err = ordersWithItems(ctx, r, orders)
		return err
	})
	if err != nil {
		return OrderListOutput{}, wrapTxError(err)
	}
	return out, nil
}

// Detail は明細と適用した割引まで返す。他人の注文は404。
func (u *OrderUsecase) Detail(ctx context.Context, userID, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound || (err == nil && o.UserID != userID) {
			return orderNotFound()
		}
		if err != nil {
			return dbError(err)
		}
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, wrapTxError(err)
	}
	return out, nil
}

// Cancel は購入者によるキャンセル（pending / confirmed のときだけ）
func (u *OrderUsecase) Cancel(ctx context.Context, userID, orderID int64, in CancelOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "cancelled by buyer"
	}

	ob := &outbox{}
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err == repo.ErrNotFound || (err == nil && o.UserID != userID) {
			return orderNotFound()
		}
		if err != nil {
			return dbError(err)
		}
		updated, err := cancelOrder(ctx, r, u.ledger, ob, o, reason)
		if err != nil {
			return err
		}
		out, err = loadOrderOutput(ctx, r, updated)
		return err
	})
	if err != nil {
		return OrderOutput{}, wrapTxError(err)
	}
	u.rt.flush(ctx, ob)
	return out, nil
}

// cancelOrder は購入者・管理者どちらのキャンセルでも使う。
// 確保済みの在庫は戻し、未払いの支払いは failed にする。使った割引は戻さない。
func cancelOrder(ctx context.Context, r repo.TxRepos, ledger *InventoryLedger, ob *outbox, o model.Order, reason string) (model.Order, error) {
	if !o.Status.Cancellable() {
		return model.Order{}, invalidTransition(string(o.Status), string(model.OrderStatusCancelled))
	}

	if o.StockReserved {
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return model.Order{}, dbError(err)
		}
		for _, it := range items {
			if err := ledger.Release(ctx, r, ob, Movement{
				VariantID:  it.VariantID,
				LocationID: it.LocationID,
				Quantity:   it.Quantity,
				Reference:  o.Code,
			}); err != nil {
				return model.Order{}, err
			}
		}
		o.StockReserved = false
	}

	refund := false
	switch o.PaymentStatus {
	case model.PaymentStatusPending:
		o.PaymentStatus = model.PaymentStatusFailed
	case model.PaymentStatusCompleted:
		refund = true
	}
	o.Status = model.OrderStatusCancelled
	o.CancelReason = reason

	updated, err := r.Orders().UpdateState(ctx, o)
	if err == repo.ErrStaleVersion {
		return model.Order{}, concurrentUpdate()
	}
	if err != nil {
		return model.Order{}, dbError(err)
	}

	ob.add(userNotice(model.NotificationOrder, model.EventOrderCancelled, updated,
		fmt.Sprintf("order %s was cancelled: %s", updated.Code, reason)))
	if refund {
		ob.add(adminNotice(model.NotificationPayment, model.EventRefundRequired, updated.Code,
			fmt.Sprintf("refund %d for cancelled order %s", updated.TotalAmount, updated.Code)))
	}
	return updated, nil
}

func loadOrderOutput(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, dbError(err)
	}
	out := toOrderOutput(o, items)
	if out.Vouchers, err = r.Orders().ListVouchers(ctx, o.ID); err != nil {
		return OrderOutput{}, dbError(err)
	}
	if out.Coupons, err = r.Orders().ListCoupons(ctx, o.ID); err != nil {
		return OrderOutput{}, dbError(err)
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:              it.ID,
			VariantID:       it.VariantID,
			LocationID:      it.LocationID,
			Name:            it.NameSnapshot,
			Attributes:      it.AttributesSnapshot,
			ImageURL:        it.ImageSnapshot,
			UnitPrice:       it.UnitPriceSnapshot,
			DiscountedPrice: it.DiscountedPriceSnapshot,
			Quantity:        it.Quantity,
			LineTotal:       it.LineTotal(),
		})
	}
	return OrderOutput{
		ID:            o.ID,
		Code:          o.Code,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Shipping:      o.Shipping,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Discount:      o.Discount,
		TotalAmount:   o.TotalAmount,
		CancelReason:  o.CancelReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Items:         outItems,
	}
}

func ordersWithItems(ctx context.Context, r repo.TxRepos, orders []model.Order) ([]OrderOutput, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	byOrder, err := r.OrderItems().ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, dbError(err)
	}
	out := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderOutput(o, byOrder[o.ID]))
	}
	return out, nil
}
