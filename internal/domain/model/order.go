package model

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodGateway PaymentMethod = "gateway"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodGateway
}

// 注文時点の配送先コピー。住所帳が後で変わっても影響しない。
type ShippingSnapshot struct {
	RecipientName string `gorm:"type:varchar(255);not null" json:"recipient_name" validate:"required,max=255"`
	Phone         string `gorm:"type:varchar(30);not null" json:"phone" validate:"required,max=30"`
	PostalCode    string `gorm:"type:varchar(20)" json:"postal_code" validate:"max=20"`
	Province      string `gorm:"type:varchar(100);not null" json:"province" validate:"required,max=100"`
	District      string `gorm:"type:varchar(100)" json:"district" validate:"max=100"`
	Line1         string `gorm:"type:varchar(255);not null" json:"line1" validate:"required,max=255"`
	Line2         string `gorm:"type:varchar(255)" json:"line2" validate:"max=255"`
}

type Order struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//決済ゲートウェイに渡す注文コード
	Code   string `gorm:"type:varchar(40);not null;uniqueIndex" json:"code"`
	UserID int64  `gorm:"not null;index" json:"user_id"`

	Shipping ShippingSnapshot `gorm:"embedded;embeddedPrefix:ship_" json:"shipping"`

	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	Status        OrderStatus   `gorm:"type:varchar(30);not null;index" json:"status"`

	Subtotal    int64 `gorm:"not null" json:"subtotal"`
	ShippingFee int64 `gorm:"not null;default:0" json:"shipping_fee"`
	Discount    int64 `gorm:"not null;default:0" json:"discount"`
	TotalAmount int64 `gorm:"not null" json:"total_amount"`

	//在庫を確保済みか（キャンセル時の戻し判定）
	StockReserved bool `gorm:"not null;default:false" json:"stock_reserved"`

	CancelReason string `gorm:"type:text" json:"cancel_reason,omitempty"`
	PaymentRef   string `gorm:"type:varchar(64)" json:"payment_ref,omitempty"`

	//楽観ロック
	Version int64 `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// 注文に紐づけたバウチャー（gatewayの場合は決済確定まで仮参照）
type OrderVoucher struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64      `gorm:"not null;index" json:"order_id"`
	GrantID    int64      `gorm:"not null;index" json:"grant_id"`
	ApplyScope ApplyScope `gorm:"type:varchar(20);not null" json:"apply_scope"`
	Amount     int64      `gorm:"not null" json:"amount"`
}

type OrderCoupon struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64      `gorm:"not null;index" json:"order_id"`
	CouponID   int64      `gorm:"not null;index" json:"coupon_id"`
	ApplyScope ApplyScope `gorm:"type:varchar(20);not null" json:"apply_scope"`
	Amount     int64      `gorm:"not null" json:"amount"`
}
