package domain

import "time"

type RequestStatus string

const (
	RequestStatusPending      RequestStatus = "pending"
	RequestStatusAcknowledged RequestStatus = "acknowledged"
	RequestStatusCompleted    RequestStatus = "completed"
)

type WaiterRequest struct {
	ID             int64         `json:"id"`
	TableNumber    string        `json:"table_number"`
	Message        string        `json:"message"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

type NewWaiterRequest struct {
	TableNumber string        `json:"table_number"`
	Message     string        `json:"message"`
	Status      RequestStatus `json:"status"`
}

// WaiterStatus is a member of the waiting staff's availability.
type WaiterStatus string

const (
	WaiterAvailable WaiterStatus = "available"
	WaiterBusy      WaiterStatus = "busy"
	WaiterOnBreak   WaiterStatus = "break"
	WaiterOffline   WaiterStatus = "offline"
)

// WaiterStatuses lists every status in board order.
var WaiterStatuses = []WaiterStatus{WaiterAvailable, WaiterBusy, WaiterOnBreak, WaiterOffline}

func (s WaiterStatus) Valid() bool {
	switch s {
	case WaiterAvailable, WaiterBusy, WaiterOnBreak, WaiterOffline:
		return true
	}
	return false
}

type Waiter struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Username      string       `json:"username"`
	Email         string       `json:"email,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Status        WaiterStatus `json:"status"`
	StatusDisplay string       `json:"status_display,omitempty"`
	LastActive    time.Time    `json:"last_active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// DisplayName falls back to the username for staff without a full name.
func (w Waiter) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Username
}
