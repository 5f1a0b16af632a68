package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"

	"gorm.io/gorm"
)

type InteractionGormRepository struct {
	db *gorm.DB
}

func NewInteractionGormRepository(db *gorm.DB) *InteractionGormRepository {
	return &InteractionGormRepository{db: db}
}

func (r *InteractionGormRepository) Create(ctx context.Context, it model.Interaction) error {
	return r.db.WithContext(ctx).Create(&it).Error
}
