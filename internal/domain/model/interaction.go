package model

import "time"

// レコメンド用の行動ログ（配達完了時の購入記録）
type Interaction struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	VariantID int64     `gorm:"not null;index" json:"variant_id"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	OrderID   int64     `gorm:"not null;index" json:"order_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

const InteractionPurchase = "purchase"
