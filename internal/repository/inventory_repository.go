package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type InventoryRepository interface {
	// 在庫が足りるときだけ減算。減算後のレコードを返す。足りなければ false。
	DecreaseIfEnough(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, bool, error)

	// 加算（レコードが無ければ作る）。加算後のレコードを返す。
	Increase(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, error)

	Find(ctx context.Context, variantID, locationID int64) (model.InventoryRecord, error)

	// 在庫の多い順
	ListByVariant(ctx context.Context, variantID int64) ([]model.InventoryRecord, error)

	// 移動ログ追記
	AppendTransaction(ctx context.Context, t model.InventoryTransaction) error

	// importを+、exportを-として合計
	SumSignedMovements(ctx context.Context, variantID, locationID int64) (int64, error)
}
