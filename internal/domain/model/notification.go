package model

import "time"

type NotificationType string

const (
	NotificationOrder       NotificationType = "order"
	NotificationPayment     NotificationType = "payment"
	NotificationInventory   NotificationType = "inventory"
	NotificationEntitlement NotificationType = "entitlement"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderConfirmed      = "order.confirmed"
	EventOrderCancelled      = "order.cancelled"
	EventOrderStatusChanged  = "order.status_changed"
	EventPaymentCompleted    = "payment.completed"
	EventPaymentFailed       = "payment.failed"
	EventRefundRequired      = "payment.refund_required"
	EventLowStock            = "inventory.low_stock"
	EventStockReleased       = "inventory.released"
	EventEntitlementConflict = "entitlement.conflict"
)

// 通知の受け手
type AudienceRole string

const (
	AudienceAdmin AudienceRole = "admin"
	AudienceUser  AudienceRole = "user"
)

type Notification struct {
	Type         NotificationType `json:"type"`
	Event        string           `json:"event"`
	Message      string           `json:"message"`
	AudienceRole AudienceRole     `json:"audience_role"`
	RecipientID  int64            `json:"recipient_id,omitempty"`
	OrderCode    string           `json:"order_code,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
