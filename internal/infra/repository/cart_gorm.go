package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

func (r *CartGormRepository) ActiveCart(ctx context.Context, userID int64) (model.Cart, error) {
	cart, err := r.FindActive(ctx, userID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return cart, err
	}

	// ACTIVEは部分ユニークインデックスで1つ。同時に作られたら既存を読む。
	now := time.Now()
	cart = model.Cart{UserID: userID, Status: model.CartStatusActive, CreatedAt: now, UpdatedAt: now}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cart)
	if res.Error != nil {
		return model.Cart{}, res.Error
	}
	if res.RowsAffected == 0 {
		return r.FindActive(ctx, userID)
	}
	return cart, nil
}

func (r *CartGormRepository) FindActive(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
		First(&cart).Error
	if isNotFound(err) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (r *CartGormRepository) Items(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	items := []model.CartItem{}
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *CartGormRepository) FindOwnedItem(ctx context.Context, userID, itemID int64) (model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ? AND carts.status = ?", itemID, userID, model.CartStatusActive).
		First(&item).Error
	if isNotFound(err) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, err
	}
	return item, nil
}

func (r *CartGormRepository) AddItem(ctx context.Context, cartID, variantID, qty, unitPrice int64) error {
	now := time.Now()
	item := model.CartItem{
		CartID:            cartID,
		VariantID:         variantID,
		Quantity:          qty,
		UnitPriceSnapshot: unitPrice,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "variant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":            gorm.Expr("cart_items.quantity + EXCLUDED.quantity"),
				"unit_price_snapshot": unitPrice,
				"updated_at":          now,
			}),
		}).
		Create(&item).Error
}

func (r *CartGormRepository) SetQuantity(ctx context.Context, itemID, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) RemoveItem(ctx context.Context, itemID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.CartItem{}, itemID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// CheckOut はACTIVEのときだけ切り替える。
func (r *CartGormRepository) CheckOut(ctx context.Context, cartID, orderID int64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND status = ?", cartID, model.CartStatusActive).
		Updates(map[string]any{
			"status":         model.CartStatusCheckedOut,
			"order_id":       orderID,
			"checked_out_at": at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
