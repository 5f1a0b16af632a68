package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *auditLogGormRepository) ListByResource(ctx context.Context, res model.AuditResourceType, resourceID int64) ([]model.AuditLog, error) {
	logs := []model.AuditLog{}
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", res, resourceID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	return logs, err
}
