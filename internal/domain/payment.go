package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const CurrencyUGX = "UGX"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

type PaymentRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PhoneNumber  string          `json:"phone_number,omitempty"`
	Method       PaymentMethod   `json:"payment_method"`
	OrderID      string          `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	Description  string          `json:"description"`
}

type PaymentResponse struct {
	Success       bool          `json:"success"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Message       string        `json:"message"`
	Status        PaymentStatus `json:"status"`
	Method        PaymentMethod `json:"payment_method"`
}

type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerResolved  LedgerStatus = "resolved"
	LedgerEscalated LedgerStatus = "escalated"
)

// UnreconciledPayment records a payment that succeeded while the matching
// order could not be written to the remote store.
type UnreconciledPayment struct {
	Reference  string          `json:"reference"`
	TableID    string          `json:"table_id"`
	Submission OrderSubmission `json:"submission"`
	Payment    PaymentResponse `json:"payment"`
	LastError  string          `json:"last_error"`
	Attempts   int             `json:"attempts"`
	Status     LedgerStatus    `json:"status"`
	OrderID    *int64          `json:"order_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
