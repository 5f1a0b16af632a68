package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditActionReceiveStock      AuditAction = "RECEIVE_STOCK"
	AuditActionAdjustStock       AuditAction = "ADJUST_STOCK"
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
)

type AuditResourceType string

const (
	AuditResourceVariant AuditResourceType = "variant"
	AuditResourceOrder   AuditResourceType = "order"
)

// 管理者による在庫・注文の変更履歴。追記のみ。
// Before/After は変更前後のスナップショット（JSON）。
type AuditLog struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID    int64             `gorm:"column:actor_user_id;not null" json:"actor_id"`
	Action     AuditAction       `gorm:"type:varchar(50);not null" json:"action"`
	Resource   AuditResourceType `gorm:"column:resource_type;type:varchar(50);not null" json:"resource"`
	ResourceID int64             `gorm:"not null" json:"resource_id"`
	Before     string            `gorm:"column:before_json;type:text" json:"before"`
	After      string            `gorm:"column:after_json;type:text" json:"after"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// NewAuditLog は before/after をJSONにして1件組み立てる。
func NewAuditLog(actor int64, action AuditAction, res AuditResourceType, id int64, before, after any, at time.Time) (AuditLog, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return AuditLog{}, err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return AuditLog{}, err
	}
	return AuditLog{
		ActorID:    actor,
		Action:     action,
		Resource:   res,
		ResourceID: id,
		Before:     string(b),
		After:      string(a),
		CreatedAt:  at,
	}, nil
}
