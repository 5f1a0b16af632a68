package repository

import "context"

// TxRepos は1つの作業単位（DBトランザクション）にぶら下がるリポジトリ。
// 在庫の減算・移動ログ・注文・割引の消費は同じ TxRepos から行う。
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Carts() CartRepository
	Inventory() InventoryRepository
	Variants() VariantRepository
	Entitlements() EntitlementRepository
	AuditLogs() AuditLogRepository
	Interactions() InteractionRepository
}

// TransactionManager は作業単位を開く。
// fn が error を返したら全部 rollback。ゲートウェイとの通信は fn の外で行う。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
