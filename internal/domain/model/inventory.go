package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 1つの(variant, location)の在庫数
type InventoryRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	VariantID  int64     `gorm:"not null;uniqueIndex:ux_inventory_variant_location" json:"variant_id"`
	LocationID int64     `gorm:"not null;uniqueIndex:ux_inventory_variant_location" json:"location_id"`
	Quantity   int64     `gorm:"not null;check:quantity >= 0" json:"quantity"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

type MovementType string

const (
	MovementImport MovementType = "import"
	MovementExport MovementType = "export"
)

// 入出庫の理由
type MovementReason string

const (
	ReasonSupplierIntake MovementReason = "supplier_intake"
	ReasonSale           MovementReason = "sale"
	ReasonSaleRollback   MovementReason = "sale_rollback"
	ReasonAdjustment     MovementReason = "adjustment"
)

// 在庫移動ログ。追記のみで更新・削除しない。
type InventoryTransaction struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	VariantID    int64               `gorm:"not null;index:ix_inv_tx_variant_location" json:"variant_id"`
	LocationID   int64               `gorm:"not null;index:ix_inv_tx_variant_location" json:"location_id"`
	MovementType MovementType        `gorm:"type:varchar(10);not null" json:"movement_type"`
	Reason       MovementReason      `gorm:"type:varchar(32);not null" json:"reason"`
	Quantity     int64               `gorm:"not null" json:"quantity"`
	UnitCost     decimal.NullDecimal `gorm:"type:numeric(18,2)" json:"unit_cost"`

	//仕入先ID・管理者IDなど相手方
	CounterpartyID *int64 `json:"counterparty_id,omitempty"`

	//注文コードなど、元になった取引
	Reference string    `gorm:"type:varchar(64);index" json:"reference"`
	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// importは+、exportは-
func (t InventoryTransaction) SignedQuantity() int64 {
	if t.MovementType == MovementExport {
		return -t.Quantity
	}
	return t.Quantity
}
