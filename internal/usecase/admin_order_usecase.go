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

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	ledger *InventoryLedger
	rt     Runtime
}

func NewAdminOrderUsecase(tx repo.TransactionManager, ledger *InventoryLedger, rt Runtime) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, ledger: ledger, rt: rt.withDefaults()}
}

type AdminUpdateOrderStatusInput struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	if f.Page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return OrderListOutput{}, validationError("invalid status %q", f.Status)
		}
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
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

// UpdateStatus は遷移表に沿ってステータスを進める。
// gateway注文の pending→confirmed は決済反映でしか起こさない。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	next, ok := model.ParseOrderStatus(strings.TrimSpace(in.Status))
	if !ok {
		return OrderOutput{}, validationError("invalid status %q", in.Status)
	}

	ob := &outbox{}
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err == repo.ErrNotFound {
			return orderNotFound()
		}
		if err != nil {
			return dbError(err)
		}

		// すでに同じなら何もしない
		if o.Status == next {
			out, err = loadOrderOutput(ctx, r, o)
			return err
		}

		before := o
		var updated model.Order
		if next == model.OrderStatusCancelled {
			reason := strings.TrimSpace(in.Reason)
			if reason == "" {
				reason = "cancelled by admin"
			}
			updated, err = cancelOrder(ctx, r, u.ledger, ob, o, reason)
		} else {
			updated, err = u.advance(ctx, r, o, next)
		}
		if err != nil {
			return err
		}

		if err := writeStatusAudit(ctx, r, actorAdminUserID, before, updated, u.rt.Clock.Now()); err != nil {
			return err
		}
		if next != model.OrderStatusCancelled {
			ob.add(userNotice(model.NotificationOrder, model.EventOrderStatusChanged, updated,
				fmt.Sprintf("order %s is now %s", updated.Code, updated.Status)))
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

func (u *AdminOrderUsecase) advance(ctx context.Context, r repo.TxRepos, o model.Order, next model.OrderStatus) (model.Order, error) {
	if o.Status.IsTerminal() || !o.Status.CanTransitionTo(next) {
		return model.Order{}, invalidTransition(string(o.Status), string(next))
	}
	if o.PaymentMethod == model.PaymentMethodGateway && o.PaymentStatus != model.PaymentStatusCompleted {
		e := newError(KindInvalidTransition, "payment_not_completed",
			fmt.Sprintf("gateway order %s has payment %s", o.Code, o.PaymentStatus))
		e.Details = map[string]any{"from": string(o.Status), "to": string(next)}
		return model.Order{}, e
	}

	if next == model.OrderStatusDelivered {
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return model.Order{}, dbError(err)
		}
		now := u.rt.Clock.Now()
		for _, it := range items {
			if err := r.Variants().IncrementSoldCount(ctx, it.VariantID, it.Quantity); err != nil {
				return model.Order{}, dbError(err)
			}
			if err := r.Interactions().Create(ctx, model.Interaction{
				UserID:    o.UserID,
				VariantID: it.VariantID,
				Kind:      model.InteractionPurchase,
				OrderID:   o.ID,
				CreatedAt: now,
			}); err != nil {
				return model.Order{}, dbError(err)
			}
		}
		// 代引きは配達時に支払われる
		if o.PaymentMethod == model.PaymentMethodCOD && o.PaymentStatus == model.PaymentStatusPending {
			o.PaymentStatus = model.PaymentStatusCompleted
		}
	}

	o.Status = next
	updated, err := r.Orders().UpdateState(ctx, o)
	if err == repo.ErrStaleVersion {
		return model.Order{}, concurrentUpdate()
	}
	if err != nil {
		return model.Order{}, dbError(err)
	}
	return updated, nil
}

type orderStatusAudit struct {
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	StockReserved bool                `json:"stock_reserved"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
}

func writeStatusAudit(ctx context.Context, r repo.TxRepos, actor int64, before, after model.Order, at time.Time) error {
	entry, err := model.NewAuditLog(actor, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, after.ID,
		orderStatusAudit{before.Status, before.PaymentStatus, before.StockReserved, before.CancelReason},
		orderStatusAudit{after.Status, after.PaymentStatus, after.StockReserved, after.CancelReason}, at)
	if err != nil {
		return internalError(err)
	}
	if err := r.AuditLogs().Create(ctx, entry); err != nil {
		return dbError(err)
	}
	return nil
}

// 期間パラメータ。空なら指定なし。
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

type OrderHistoryOutput struct {
	OrderID   int64            `json:"order_id"`
	OrderCode string           `json:"order_code"`
	Entries   []model.AuditLog `json:"entries"`
}

// History は管理者によるステータス変更を古い順に返す。
func (u *AdminOrderUsecase) History(ctx context.Context, orderID int64) (OrderHistoryOutput, error) {
	if orderID <= 0 {
		return OrderHistoryOutput{}, validationError("invalid id")
	}

	var out OrderHistoryOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return orderNotFound()
		}
		if err != nil {
			return dbError(err)
		}
		logs, err := r.AuditLogs().ListByResource(ctx, model.AuditResourceOrder, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = OrderHistoryOutput{OrderID: o.ID, OrderCode: o.Code, Entries: logs}
		return nil
	})
	if err != nil {
		return OrderHistoryOutput{}, wrapTxError(err)
	}
	return out, nil
}
