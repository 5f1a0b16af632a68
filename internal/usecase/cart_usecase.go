package usecase

import (
	"context"
	"net/http"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
// 注文確定でカートは CHECKED_OUT になり、次の追加で新しいACTIVEが作られます。
type CartUsecase struct {
	tx repo.TransactionManager
}

func NewCartUsecase(tx repo.TransactionManager) *CartUsecase {
	return &CartUsecase{tx: tx}
}

// price は unit_price_snapshot（追加時点の価格）を返します。
type CartItemResponse struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

type AddCartInput struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type UpdateCartItemInput struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CartResponse
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().ActiveCart(ctx, userID)
		if err != nil {
			return dbError(err)
		}
		out, err = buildCartResponse(ctx, r, cart.ID)
		return err
	})
	return out, wrapTxError(err)
}

// AddToCart はカートに追加（同一variantは数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.VariantID <= 0 {
		return CartResponse{}, validationError("invalid variant_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, validationError("invalid quantity")
	}

	var out CartResponse
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().ActiveCart(ctx, userID)
		if err != nil {
			return dbError(err)
		}

		v, err := activeVariant(ctx, r, in.VariantID)
		if err != nil {
			return err
		}

		items, err := r.Carts().Items(ctx, cart.ID)
		if err != nil {
			return dbError(err)
		}
		var existingQty int64
		for _, it := range items {
			if it.VariantID == in.VariantID {
				existingQty = it.Quantity
				break
			}
		}

		// 確保はチェックアウト時。ここでは1拠点で足りるかだけ見る。
		if err := checkStock(ctx, r, v, existingQty+in.Quantity); err != nil {
			return err
		}

		if err := r.Carts().AddItem(ctx, cart.ID, v.ID, in.Quantity, v.EffectivePrice()); err != nil {
			return dbError(err)
		}
		out, err = buildCartResponse(ctx, r, cart.ID)
		return err
	})
	return out, wrapTxError(err)
}

// 数量変更（所有チェック＋在庫チェック）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, validationError("invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, validationError("invalid quantity")
	}

	var out CartResponse
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := ownedCartItem(ctx, r, userID, cartItemID)
		if err != nil {
			return err
		}
		v, err := activeVariant(ctx, r, item.VariantID)
		if err != nil {
			return err
		}
		if err := checkStock(ctx, r, v, in.Quantity); err != nil {
			return err
		}
		if err := r.Carts().SetQuantity(ctx, cartItemID, in.Quantity); err == repo.ErrNotFound {
			return notFound("cart item not found")
		} else if err != nil {
			return dbError(err)
		}
		out, err = buildCartResponse(ctx, r, item.CartID)
		return err
	})
	return out, wrapTxError(err)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, validationError("invalid id")
	}

	var out CartResponse
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := ownedCartItem(ctx, r, userID, cartItemID)
		if err != nil {
			return err
		}
		if err := r.Carts().RemoveItem(ctx, cartItemID); err == repo.ErrNotFound {
			return notFound("cart item not found")
		} else if err != nil {
			return dbError(err)
		}
		out, err = buildCartResponse(ctx, r, item.CartID)
		return err
	})
	return out, wrapTxError(err)
}

// ACTIVEカートにある自分の明細だけ返す。他人の明細は存在しない扱い。
func ownedCartItem(ctx context.Context, r repo.TxRepos, userID, cartItemID int64) (model.CartItem, error) {
	item, err := r.Carts().FindOwnedItem(ctx, userID, cartItemID)
	if err == repo.ErrNotFound {
		return model.CartItem{}, notFound("cart item not found")
	}
	if err != nil {
		return model.CartItem{}, dbError(err)
	}
	return item, nil
}

func activeVariant(ctx context.Context, r repo.TxRepos, variantID int64) (model.ProductVariant, error) {
	v, err := r.Variants().FindByID(ctx, variantID)
	if err == repo.ErrNotFound {
		return model.ProductVariant{}, notFound("variant not found")
	}
	if err != nil {
		return model.ProductVariant{}, dbError(err)
	}
	if !v.IsActive {
		return model.ProductVariant{}, validationError("variant %d is not for sale", v.ID)
	}
	return v, nil
}

func checkStock(ctx context.Context, r repo.TxRepos, v model.ProductVariant, qty int64) error {
	recs, err := r.Inventory().ListByVariant(ctx, v.ID)
	if err != nil {
		return dbError(err)
	}
	if len(recs) == 0 || recs[0].Quantity < qty {
		return outOfStock(v.ID, v.Name, qty)
	}
	return nil
}

// cartIDの明細をまとめてCartResponseを作る。
func buildCartResponse(ctx context.Context, r repo.TxRepos, cartID int64) (CartResponse, error) {
	items, err := r.Carts().Items(ctx, cartID)
	if err != nil {
		return CartResponse{}, dbError(err)
	}

	respItems := make([]CartItemResponse, 0, len(items))
	var total int64
	for _, it := range items {
		v, err := r.Variants().FindByID(ctx, it.VariantID)
		if err != nil || !v.IsActive {
			continue
		}
		respItems = append(respItems, CartItemResponse{
			ID:        it.ID,
			VariantID: it.VariantID,
			Name:      v.Name,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
		total += it.LineTotal()
	}
	return CartResponse{Items: respItems, Total: total}, nil
}
