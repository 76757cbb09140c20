package checkout

import (
	"fmt"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

// ValidationError is bad customer input, caught before anything is charged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayError is a declined or failed payment. No order was submitted.
type GatewayError struct {
	Response *domain.PaymentResponse
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %v", e.Err)
	}
	if e.Response != nil {
		return fmt.Sprintf("payment declined: %s", e.Response.Message)
	}
	return "payment declined"
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SubmissionError means the payment went through but the order could not be
// written. Escalated reports whether the payment reached the reconciliation
// ledger.
type SubmissionError struct {
	Reference string
	Payment   domain.PaymentResponse
	Escalated bool
	Err       error
}

func (e *SubmissionError) Error() string {
	state := "not escalated"
	if e.Escalated {
		state = "escalated for reconciliation"
	}
	return fmt.Sprintf("order %s paid (transaction %s) but not submitted, %s: %v", e.Reference, e.Payment.TransactionID, state, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
