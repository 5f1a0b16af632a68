package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

// カタログは外部管理。参照と販売数の加算だけ。
type VariantRepository interface {
	FindByID(ctx context.Context, id int64) (model.ProductVariant, error)
	IncrementSoldCount(ctx context.Context, id int64, qty int64) error
}
