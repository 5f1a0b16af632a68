package repository

import (
	"context"

	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
)

// txReposGorm は1つの *gorm.DB（tx）を共有するリポジトリの束
type txReposGorm struct {
	tx *gorm.DB
}

func (r txReposGorm) Orders() repo.OrderRepository         { return NewOrderGormRepository(r.tx) }
func (r txReposGorm) OrderItems() repo.OrderItemRepository { return NewOrderItemGormRepository(r.tx) }
func (r txReposGorm) Carts() repo.CartRepository           { return NewCartGormRepository(r.tx) }
func (r txReposGorm) Inventory() repo.InventoryRepository  { return NewInventoryGormRepository(r.tx) }
func (r txReposGorm) Variants() repo.VariantRepository     { return NewVariantGormRepository(r.tx) }
func (r txReposGorm) Entitlements() repo.EntitlementRepository {
	return NewEntitlementGormRepository(r.tx)
}
func (r txReposGorm) AuditLogs() repo.AuditLogRepository { return NewAuditLogGormRepository(r.tx) }
func (r txReposGorm) Interactions() repo.InteractionRepository {
	return NewInteractionGormRepository(r.tx)
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// WithinTx は fn を1つのトランザクションで実行する（分離レベルはDBの既定）。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txReposGorm{tx: tx})
	})
}
