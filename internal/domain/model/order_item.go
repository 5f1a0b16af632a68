package model

import "time"

// 注文明細。カタログを参照せず、注文時点の値をすべてコピーして持つ。
type OrderItem struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64 `gorm:"not null;index" json:"order_id"`
	VariantID  int64 `gorm:"not null;index" json:"variant_id"`
	LocationID int64 `gorm:"not null;default:0" json:"location_id"`

	NameSnapshot            string `gorm:"type:varchar(255);not null" json:"name"`
	AttributesSnapshot      string `gorm:"type:text" json:"attributes"`
	ImageSnapshot           string `gorm:"type:text" json:"image_url"`
	UnitPriceSnapshot       int64  `gorm:"not null" json:"unit_price"`
	DiscountedPriceSnapshot int64  `gorm:"not null" json:"discounted_price"`
	Quantity                int64  `gorm:"not null" json:"quantity"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (it OrderItem) LineTotal() int64 {
	return it.DiscountedPriceSnapshot * it.Quantity
}
