package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByCode(ctx context.Context, code string) (model.Order, error)
	// 行ロック付き（SELECT ... FOR UPDATE）
	FindByCodeForUpdate(ctx context.Context, code string) (model.Order, error)
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)

	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	// 決済待ちのgateway注文（古い順）。ゲートウェイに決済を作れていない注文（payment_ref が空）は含めない。
	ListPendingGateway(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error)

	Create(ctx context.Context, order model.Order) (model.Order, error)

	// status系カラムを order.Version が一致するときだけ更新し、version を+1する。
	// 一致しなければ ErrStaleVersion。
	UpdateState(ctx context.Context, order model.Order) (model.Order, error)

	CreateVouchers(ctx context.Context, orderID int64, vouchers []model.OrderVoucher) error
	CreateCoupons(ctx context.Context, orderID int64, coupons []model.OrderCoupon) error
	ListVouchers(ctx context.Context, orderID int64) ([]model.OrderVoucher, error)
	ListCoupons(ctx context.Context, orderID int64) ([]model.OrderCoupon, error)
}
