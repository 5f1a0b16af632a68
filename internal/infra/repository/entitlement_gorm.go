package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EntitlementGormRepository struct {
	db *gorm.DB
}

func NewEntitlementGormRepository(db *gorm.DB) *EntitlementGormRepository {
	return &EntitlementGormRepository{db: db}
}

func (r *EntitlementGormRepository) FindVoucherGrant(ctx context.Context, grantID int64) (model.VoucherGrant, error) {
	var g model.VoucherGrant
	err := r.db.WithContext(ctx).Preload("Voucher").Where("id = ?", grantID).First(&g).Error
	if isNotFound(err) {
		return model.VoucherGrant{}, repo.ErrNotFound
	}
	if err != nil {
		return model.VoucherGrant{}, err
	}
	return g, nil
}

// is_used=false を条件にして一度だけ使用済みにする
func (r *EntitlementGormRepository) MarkVoucherGrantUsed(ctx context.Context, grantID int64, userID int64, orderID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.VoucherGrant{}).
		Where("id = ? AND user_id = ? AND is_used = ?", grantID, userID, false).
		Updates(map[string]any{
			"is_used":  true,
			"used_at":  at,
			"order_id": orderID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *EntitlementGormRepository) FindCouponGrant(ctx context.Context, userID int64, couponID int64) (model.CouponGrant, error) {
	var g model.CouponGrant
	err := r.db.WithContext(ctx).
		Preload("Coupon").
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		First(&g).Error
	if isNotFound(err) {
		return model.CouponGrant{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CouponGrant{}, err
	}
	return g, nil
}

func (r *EntitlementGormRepository) MarkCouponGrantUsed(ctx context.Context, userID int64, couponID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.CouponGrant{}).
		Where("user_id = ? AND coupon_id = ? AND is_used = ?", userID, couponID, false).
		Updates(map[string]any{
			"is_used": true,
			"used_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// 再実行されても1件だけ
func (r *EntitlementGormRepository) CreateCouponUsage(ctx context.Context, usage model.CouponUsage) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&usage)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *EntitlementGormRepository) CouponUsageExists(ctx context.Context, userID int64, couponID int64, orderID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.CouponUsage{}).
		Where("user_id = ? AND coupon_id = ? AND order_id = ?", userID, couponID, orderID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
