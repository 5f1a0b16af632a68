package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	// 一覧画面用。注文IDごとにまとめて返す。
	ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error)
	// 出荷拠点だけは決済確定時に決まる（gateway）
	AssignLocation(ctx context.Context, itemID int64, locationID int64) error
}
