package usecase

import (
	"context"
	"fmt"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// EntitlementRedeemer はバウチャー・クーポンの検証と使用済み化を行う。
// 使用済み化は注文ごとに1回だけ（再実行しても同じ注文なら成功扱い）。
type EntitlementRedeemer struct {
	clock Clock
}

func NewEntitlementRedeemer(clock Clock) *EntitlementRedeemer {
	if clock == nil {
		clock = realClock{}
	}
	return &EntitlementRedeemer{clock: clock}
}

type VoucherRef struct {
	GrantID    int64            `json:"grant_id" validate:"required,gt=0"`
	ApplyScope model.ApplyScope `json:"apply_scope" validate:"required,oneof=order shipping"`
}

type CouponRef struct {
	CouponID   int64            `json:"coupon_id" validate:"required,gt=0"`
	ApplyScope model.ApplyScope `json:"apply_scope" validate:"required,oneof=order shipping"`
}

// ResolveVoucher はチェックアウト時の検証（使用済みにはしない）
func (e *EntitlementRedeemer) ResolveVoucher(ctx context.Context, r repo.TxRepos, userID, grantID int64) (model.VoucherGrant, error) {
	g, err := r.Entitlements().FindVoucherGrant(ctx, grantID)
	if err == repo.ErrNotFound {
		return model.VoucherGrant{}, entitlementNotFound("voucher grant", grantID)
	}
	if err != nil {
		return model.VoucherGrant{}, dbError(err)
	}
	// 他人のものは存在しない扱い
	if g.UserID != userID {
		return model.VoucherGrant{}, entitlementNotFound("voucher grant", grantID)
	}
	if g.IsUsed {
		return model.VoucherGrant{}, entitlementAlreadyUsed("voucher grant", grantID)
	}
	if g.Voucher.Expired(e.clock.Now()) {
		return model.VoucherGrant{}, validationError("voucher grant %d has expired", grantID)
	}
	return g, nil
}

func (e *EntitlementRedeemer) ResolveCoupon(ctx context.Context, r repo.TxRepos, userID, couponID int64) (model.CouponGrant, error) {
	g, err := r.Entitlements().FindCouponGrant(ctx, userID, couponID)
	if err == repo.ErrNotFound {
		return model.CouponGrant{}, entitlementNotFound("coupon", couponID)
	}
	if err != nil {
		return model.CouponGrant{}, dbError(err)
	}
	if g.IsUsed {
		return model.CouponGrant{}, entitlementAlreadyUsed("coupon", couponID)
	}
	if g.Coupon.Expired(e.clock.Now()) {
		return model.CouponGrant{}, validationError("coupon %d has expired", couponID)
	}
	return g, nil
}

// RedeemVoucherGrant は is_used を false→true にする。
func (e *EntitlementRedeemer) RedeemVoucherGrant(ctx context.Context, r repo.TxRepos, userID, grantID, orderID int64) error {
	ok, err := r.Entitlements().MarkVoucherGrantUsed(ctx, grantID, userID, orderID, e.clock.Now())
	if err != nil {
		return dbError(err)
	}
	if ok {
		return nil
	}

	g, err := r.Entitlements().FindVoucherGrant(ctx, grantID)
	if err == repo.ErrNotFound || (err == nil && g.UserID != userID) {
		return entitlementNotFound("voucher grant", grantID)
	}
	if err != nil {
		return dbError(err)
	}
	// 同じ注文での再実行
	if g.IsUsed && g.OrderID != nil && *g.OrderID == orderID {
		return nil
	}
	return entitlementAlreadyUsed("voucher grant", grantID)
}

// RedeemCouponGrant は使用済み化と利用記録の作成を行う。
func (e *EntitlementRedeemer) RedeemCouponGrant(ctx context.Context, r repo.TxRepos, userID, couponID, orderID int64) error {
	ok, err := r.Entitlements().MarkCouponGrantUsed(ctx, userID, couponID, e.clock.Now())
	if err != nil {
		return dbError(err)
	}
	if ok {
		if _, err := r.Entitlements().CreateCouponUsage(ctx, model.CouponUsage{
			UserID:    userID,
			CouponID:  couponID,
			OrderID:   orderID,
			CreatedAt: e.clock.Now(),
		}); err != nil {
			return dbError(err)
		}
		return nil
	}

	exists, err := r.Entitlements().CouponUsageExists(ctx, userID, couponID, orderID)
	if err != nil {
		return dbError(err)
	}
	if exists {
		return nil
	}
	if _, err := r.Entitlements().FindCouponGrant(ctx, userID, couponID); err == repo.ErrNotFound {
		return entitlementNotFound("coupon", couponID)
	} else if err != nil {
		return dbError(err)
	}
	return entitlementAlreadyUsed("coupon", couponID)
}

func entitlementNotFound(what string, id int64) *HTTPError {
	e := newError(KindNotFound, "entitlement_not_found", fmt.Sprintf("%s %d not found", what, id))
	e.Details = map[string]any{"id": id}
	return e
}

func entitlementAlreadyUsed(what string, id int64) *HTTPError {
	e := newError(KindConflict, "entitlement_already_used", fmt.Sprintf("%s %d is already used", what, id))
	e.Details = map[string]any{"id": id}
	return e
}
