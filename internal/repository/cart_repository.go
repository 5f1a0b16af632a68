package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

// CartRepository はACTIVEカートとその明細を扱う。
type CartRepository interface {
	// 無ければ作る
	ActiveCart(ctx context.Context, userID int64) (model.Cart, error)
	// 無ければ ErrNotFound
	FindActive(ctx context.Context, userID int64) (model.Cart, error)

	Items(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// userIDのACTIVEカートの明細でなければ ErrNotFound
	FindOwnedItem(ctx context.Context, userID, itemID int64) (model.CartItem, error)
	// 同じvariantは数量を足し、単価は上書き
	AddItem(ctx context.Context, cartID, variantID, qty, unitPrice int64) error
	SetQuantity(ctx context.Context, itemID, qty int64) error
	RemoveItem(ctx context.Context, itemID int64) error

	// 注文に紐づけて CHECKED_OUT にする。以降の追加は新しいカートに入る。
	CheckOut(ctx context.Context, cartID, orderID int64, at time.Time) error
}
