package model

import "time"

// 割引の適用先
type ApplyScope string

const (
	ApplyScopeOrder    ApplyScope = "order"
	ApplyScopeShipping ApplyScope = "shipping"
)

func (s ApplyScope) Valid() bool {
	return s == ApplyScopeOrder || s == ApplyScopeShipping
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// バウチャー・クーポン共通の割引ルール
type DiscountRule struct {
	DiscountType  DiscountType `gorm:"type:varchar(10);not null" json:"discount_type"`
	Value         int64        `gorm:"not null" json:"value"`
	MaxDiscount   int64        `gorm:"not null;default:0" json:"max_discount"`
	MinOrderValue int64        `gorm:"not null;default:0" json:"min_order_value"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// baseに対する割引額。base以上にはならない。
func (r DiscountRule) DiscountFor(base int64) int64 {
	var d int64
	switch r.DiscountType {
	case DiscountPercent:
		d = base * r.Value / 100
	case DiscountFixed:
		d = r.Value
	}
	if r.MaxDiscount > 0 && d > r.MaxDiscount {
		d = r.MaxDiscount
	}
	if d > base {
		d = base
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (r DiscountRule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// バウチャー定義
type Voucher struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	DiscountRule
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// ユーザーに配布したバウチャー1枚
type VoucherGrant struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	VoucherID int64      `gorm:"not null;index" json:"voucher_id"`
	IsUsed    bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	OrderID   *int64     `json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`

	Voucher Voucher `gorm:"foreignKey:VoucherID" json:"voucher"`
}

// クーポン定義（プール型）
type Coupon struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	DiscountRule
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// ユーザーが取得したクーポン。(user, coupon)で1件。
type CouponGrant struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;uniqueIndex:ux_coupon_grant_user_coupon" json:"user_id"`
	CouponID  int64      `gorm:"not null;uniqueIndex:ux_coupon_grant_user_coupon" json:"coupon_id"`
	IsUsed    bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`

	Coupon Coupon `gorm:"foreignKey:CouponID" json:"coupon"`
}

// クーポン利用記録。(user, coupon, order)で一意。
type CouponUsage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:ux_coupon_usage" json:"user_id"`
	CouponID  int64     `gorm:"not null;uniqueIndex:ux_coupon_usage" json:"coupon_id"`
	OrderID   int64     `gorm:"not null;uniqueIndex:ux_coupon_usage" json:"order_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
