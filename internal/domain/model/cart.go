package model

import "time"

type CartStatus string

const (
	CartStatusActive     CartStatus = "ACTIVE"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
)

// 購入前のカート。ACTIVEはユーザーごとに1つ。
// 注文が確定すると CHECKED_OUT になり、明細は注文との対応として残る。
type Cart struct {
	ID     int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64      `gorm:"not null;index" json:"user_id"`
	Status CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//このカートから確定した注文
	OrderID      *int64     `json:"order_id,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (c Cart) CheckedOut() bool {
	return c.Status == CartStatusCheckedOut
}

// カートの明細。(cart, variant)で1行。
// 単価は追加時点の表示用で、注文ではvariantの現在価格を使う。
type CartItem struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID            int64     `gorm:"not null;uniqueIndex:ux_cart_items_cart_variant" json:"cart_id"`
	VariantID         int64     `gorm:"not null;uniqueIndex:ux_cart_items_cart_variant" json:"variant_id"`
	Quantity          int64     `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot int64     `gorm:"not null" json:"unit_price_snapshot"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (it CartItem) LineTotal() int64 {
	return it.UnitPriceSnapshot * it.Quantity
}
