package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫が足りるときだけ減らす
// 条件付きUPDATE 1文なので、同時に走っても両方成功することはない。
func (r *InventoryGormRepository) DecreaseIfEnough(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, bool, error) {
	var rec model.InventoryRecord
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{}).
		Where("variant_id = ? AND location_id = ? AND quantity >= ?", variantID, locationID, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now(),
		})

	if res.Error != nil {
		return model.InventoryRecord{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return model.InventoryRecord{}, false, nil
	}
	return rec, true, nil
}

// 在庫戻し・入庫。無ければ作る。
func (r *InventoryGormRepository) Increase(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, error) {
	now := time.Now()
	rec := model.InventoryRecord{
		VariantID:  variantID,
		LocationID: locationID,
		Quantity:   qty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "variant_id"}, {Name: "location_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"quantity":   gorm.Expr("inventory_records.quantity + EXCLUDED.quantity"),
					"updated_at": now,
				}),
			},
			clause.Returning{},
		).
		Create(&rec).Error
	if err != nil {
		return model.InventoryRecord{}, err
	}
	return rec, nil
}

func (r *InventoryGormRepository) Find(ctx context.Context, variantID, locationID int64) (model.InventoryRecord, error) {
	var rec model.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		First(&rec).Error
	if isNotFound(err) {
		return model.InventoryRecord{}, repo.ErrNotFound
	}
	if err != nil {
		return model.InventoryRecord{}, err
	}
	return rec, nil
}

func (r *InventoryGormRepository) ListByVariant(ctx context.Context, variantID int64) ([]model.InventoryRecord, error) {
	var recs []model.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("quantity desc, location_id asc").
		Find(&recs).Error
	if err != nil {
		return []model.InventoryRecord{}, err
	}
	return recs, nil
}

// 移動ログ追記
func (r *InventoryGormRepository) AppendTransaction(ctx context.Context, t model.InventoryTransaction) error {
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return err
	}
	return nil
}

func (r *InventoryGormRepository) SumSignedMovements(ctx context.Context, variantID, locationID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.InventoryTransaction{}).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		Select("COALESCE(SUM(CASE WHEN movement_type = ? THEN -quantity ELSE quantity END), 0)", model.MovementExport).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}
