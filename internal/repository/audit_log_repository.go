package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 対象1件の履歴を古い順で返す。
	ListByResource(ctx context.Context, res model.AuditResourceType, resourceID int64) ([]model.AuditLog, error)
}
