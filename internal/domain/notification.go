package domain

import "time"

type NotificationType string

const (
	NotificationWaiterRequest  NotificationType = "waiter_request"
	NotificationNewOrder       NotificationType = "new_order"
	NotificationOrderStatus    NotificationType = "order_status"
	NotificationPaymentSuccess NotificationType = "payment_success"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is an operator alert held by the notification bus.
// Source is empty for notifications produced in this process and carries the
// origin process id for notifications relayed in from elsewhere.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	TableID   string           `json:"table_id,omitempty"`
	OrderID   int64            `json:"order_id,omitempty"`
	Priority  Priority         `json:"priority"`
	CreatedAt time.Time        `json:"timestamp"`
	Data      map[string]any   `json:"data,omitempty"`
	Source    string           `json:"source,omitempty"`

	// Observed marks alerts derived from this process's own poll of the
	// store. Every terminal polls for itself, so these are never relayed.
	Observed bool `json:"-"`
}
