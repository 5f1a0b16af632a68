package model

import "time"

// 購入単位（サイズ・色などのSKU）。カタログ側が管理し、ここでは参照と販売数の更新だけ行う。
type ProductVariant struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64  `gorm:"not null;index" json:"product_id"`
	SKU       string `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku"`
	Name      string `gorm:"type:varchar(255);not null" json:"name"`

	//"color=red;size=M" のような属性文字列
	Attributes string `gorm:"type:text" json:"attributes"`
	ImageURL   string `gorm:"type:text" json:"image_url"`

	Price           int64 `gorm:"not null" json:"price"`
	DiscountedPrice int64 `gorm:"not null;default:0" json:"discounted_price"`
	SoldCount       int64 `gorm:"not null;default:0" json:"sold_count"`
	IsActive        bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 実際に請求する単価。割引価格が設定されていればそちらを使う。
func (v ProductVariant) EffectivePrice() int64 {
	if v.DiscountedPrice > 0 && v.DiscountedPrice < v.Price {
		return v.DiscountedPrice
	}
	return v.Price
}
