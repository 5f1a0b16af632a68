package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", orderID))
}

func (r *OrderGormRepository) FindByCode(ctx context.Context, code string) (model.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", code))
}

func (r *OrderGormRepository) FindByCodeForUpdate(ctx context.Context, code string) (model.Order, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code))
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID))
}

func (r *OrderGormRepository) first(q *gorm.DB) (model.Order, error) {
	var o model.Order
	err := q.First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

func (r *OrderGormRepository) ListPendingGateway(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("payment_method = ? AND payment_status = ? AND status = ? AND created_at < ? AND payment_ref <> ''",
			model.PaymentMethodGateway, model.PaymentStatusPending, model.OrderStatusPending, createdBefore).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, err
	}
	return items, nil
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if order.Version == 0 {
		order.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Order{}, repo.ErrDuplicate
		}
		return model.Order{}, err
	}
	return order, nil
}

// versionによるCAS
func (r *OrderGormRepository) UpdateState(ctx context.Context, order model.Order) (model.Order, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"cancel_reason":  order.CancelReason,
			"stock_reserved": order.StockReserved,
			"payment_ref":    order.PaymentRef,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     now,
		})

	if res.Error != nil {
		return model.Order{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.Order{}, repo.ErrStaleVersion
	}

	order.Version++
	order.UpdatedAt = now
	return order, nil
}

func (r *OrderGormRepository) CreateVouchers(ctx context.Context, orderID int64, vouchers []model.OrderVoucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	for i := range vouchers {
		vouchers[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&vouchers).Error
}

func (r *OrderGormRepository) CreateCoupons(ctx context.Context, orderID int64, coupons []model.OrderCoupon) error {
	if len(coupons) == 0 {
		return nil
	}
	for i := range coupons {
		coupons[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&coupons).Error
}

func (r *OrderGormRepository) ListVouchers(ctx context.Context, orderID int64) ([]model.OrderVoucher, error) {
	var out []model.OrderVoucher
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&out).Error; err != nil {
		return []model.OrderVoucher{}, err
	}
	return out, nil
}

func (r *OrderGormRepository) ListCoupons(ctx context.Context, orderID int64) ([]model.OrderCoupon, error) {
	var out []model.OrderCoupon
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&out).Error; err != nil {
		return []model.OrderCoupon{}, err
	}
	return out, nil
}
