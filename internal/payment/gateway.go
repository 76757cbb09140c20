// Package payment simulates the cash and mobile-money payment providers a
// table can pay through.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

var ErrUnsupportedMethod = errors.New("unsupported payment method")

// Gateway charges a payment request. A declined payment is a response with
// Success false; the error is reserved for the gateway itself failing.
type Gateway interface {
	ProcessPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error)
}

type profile struct {
	delay       time.Duration
	successRate float64
	prefix      string
	approved    string
	declined    string
}

var profiles = map[domain.PaymentMethod]profile{
	domain.PaymentCash: {
		delay:       time.Second,
		successRate: 1,
		prefix:      "CASH_",
		approved:    "Cash payment accepted. Please pay when your order arrives.",
	},
	domain.PaymentMTNMoMo: {
		delay:       2 * time.Second,
		successRate: 0.90,
		prefix:      "MTN_",
		approved:    "Payment successful via MTN Mobile Money",
		declined:    "Payment failed. Please check your MTN Mobile Money balance and try again.",
	},
	domain.PaymentAirtelMoney: {
		delay:       2500 * time.Millisecond,
		successRate: 0.85,
		prefix:      "AIRTEL_",
		approved:    "Payment successful via Airtel Money",
		declined:    "Payment failed. Please check your Airtel Money balance and try again.",
	},
}

// Outcome decides whether a mobile-money payment goes through given the
// method's success rate.
type Outcome func(method domain.PaymentMethod, successRate float64) bool

func randomOutcome(_ domain.PaymentMethod, successRate float64) bool {
	return rand.Float64() < successRate
}

// Always returns an Outcome that ignores the success rate.
func Always(success bool) Outcome {
	return func(domain.PaymentMethod, float64) bool { return success }
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay skips the simulated provider latency.
func NoDelay(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type SimulatedOption func(*Simulated)

func WithOutcome(o Outcome) SimulatedOption {
	return func(s *Simulated) { s.outcome = o }
}

func WithSleeper(sl Sleeper) SimulatedOption {
	return func(s *Simulated) { s.sleep = sl }
}

func WithClock(now func() time.Time) SimulatedOption {
	return func(s *Simulated) { s.now = now }
}

// Simulated stands in for the real providers: each method answers after a
// fixed delay and succeeds at a fixed rate.
type Simulated struct {
	logger  *slog.Logger
	outcome Outcome
	sleep   Sleeper
	now     func() time.Time
}

func NewSimulated(logger *slog.Logger, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		logger:  logger,
		outcome: randomOutcome,
		sleep:   sleepWithContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	p, ok := profiles[req.Method]
	if !ok {
		return domain.PaymentResponse{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	s.logger.Info("processing payment", "method", req.Method, "order_id", req.OrderID, "amount", req.Amount.String())

	if err := s.sleep(ctx, p.delay); err != nil {
		return domain.PaymentResponse{}, fmt.Errorf("payment %s interrupted: %w", req.OrderID, err)
	}

	if p.successRate < 1 && !s.outcome(req.Method, p.successRate) {
		s.logger.Warn("payment declined", "method", req.Method, "order_id", req.OrderID)
		return domain.PaymentResponse{
			Success: false,
			Message: p.declined,
			Status:  domain.PaymentStatusFailed,
			Method:  req.Method,
		}, nil
	}

	resp := domain.PaymentResponse{
		Success:       true,
		TransactionID: fmt.Sprintf("%s%d", p.prefix, s.now().UnixMilli()),
		Message:       p.approved,
		Status:        domain.PaymentStatusCompleted,
		Method:        req.Method,
	}
	s.logger.Info("payment completed", "method", req.Method, "order_id", req.OrderID, "transaction_id", resp.TransactionID)
	return resp, nil
}

// CheckStatus reports the state of an earlier transaction. The simulated
// providers settle instantly, so every known transaction is completed.
func (s *Simulated) CheckStatus(ctx context.Context, transactionID string, method domain.PaymentMethod) (domain.PaymentResponse, error) {
	if _, ok := profiles[method]; !ok {
		return domain.PaymentResponse{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if err := s.sleep(ctx, time.Second); err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{
		Success:       true,
		TransactionID: transactionID,
		Message:       "Payment completed successfully",
		Status:        domain.PaymentStatusCompleted,
		Method:        method,
	}, nil
}
