package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type EntitlementRepository interface {
	// Voucherをpreloadして返す
	FindVoucherGrant(ctx context.Context, grantID int64) (model.VoucherGrant, error)

	// is_used=false のときだけ true にする。更新できなければ false。
	MarkVoucherGrantUsed(ctx context.Context, grantID int64, userID int64, orderID int64, at time.Time) (bool, error)

	// Couponをpreloadして返す
	FindCouponGrant(ctx context.Context, userID int64, couponID int64) (model.CouponGrant, error)
	MarkCouponGrantUsed(ctx context.Context, userID int64, couponID int64, at time.Time) (bool, error)

	// (user, coupon, order)が既にあれば何もしない。作成したら true。
	CreateCouponUsage(ctx context.Context, usage model.CouponUsage) (bool, error)
	CouponUsageExists(ctx context.Context, userID int64, couponID int64, orderID int64) (bool, error)
}
