// Package checkout runs the payment-then-order sequence for a table. An order
// is only ever submitted after its payment succeeded, and a paid order that
// cannot be submitted is handed to the reconciliation ledger.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/payment"
	"github.com/joao-fontenele/tableflow/internal/remote"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

var tracer = otel.Tracer("tableflow/checkout")

const defaultCustomerName = "Table Customer"

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseValidatingInput  Phase = "validating_input"
	PhaseValidationFailed Phase = "validation_failed"
	PhaseAwaitingGateway  Phase = "awaiting_gateway"
	PhaseGatewaySucceeded Phase = "gateway_succeeded"
	PhaseGatewayFailed    Phase = "gateway_failed"
	PhaseSubmittingOrder  Phase = "submitting_order"
	PhaseOrderCreated     Phase = "order_created"
	PhaseSubmissionFailed Phase = "submission_failed"
	PhaseAborted          Phase = "aborted"
)

// Store is the part of the remote store checkout writes to.
type Store interface {
	CreateOrder(ctx context.Context, sub domain.OrderSubmission) (int64, error)
	FindOrderByReference(ctx context.Context, reference string) (*domain.TableOrder, error)
}

// Ledger keeps paid orders that could not be submitted.
type Ledger interface {
	Record(ctx context.Context, p domain.UnreconciledPayment) error
}

type Line struct {
	MenuItemID     int64           `json:"menu_item_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	SpecialRequest string          `json:"special_request,omitempty"`
}

type Cart struct {
	TableID string `json:"table_id"`
	Lines   []Line `json:"items"`
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

type PaymentInfo struct {
	Method domain.PaymentMethod `json:"payment_method"`
	Phone  string               `json:"phone"`
	Name   string               `json:"name"`
	Email  string               `json:"email"`
}

type Receipt struct {
	OrderID   int64                  `json:"order_id"`
	Reference string                 `json:"reference"`
	TableID   string                 `json:"table_id"`
	Total     decimal.Decimal        `json:"total"`
	Payment   domain.PaymentResponse `json:"payment"`
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSubmitRetries sets how many times a failed order submission is retried
// after the first attempt.
func WithSubmitRetries(n int) Option {
	return func(o *Orchestrator) { o.submitRetries = n }
}

func WithRetryInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryInterval = d }
}

type Orchestrator struct {
	gateway payment.Gateway
	store   Store
	ledger  Ledger
	bus     *notify.Bus
	logger  *slog.Logger

	now           func() time.Time
	submitRetries int
	retryInterval time.Duration

	outcomes metric.Int64Counter
}

func NewOrchestrator(gateway payment.Gateway, store Store, ledger Ledger, bus *notify.Bus, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:       gateway,
		store:         store,
		ledger:        ledger,
		bus:           bus,
		logger:        logger,
		now:           time.Now,
		submitRetries: 2,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.outcomes = telemetry.Counter(otel.Meter("tableflow/checkout"), "checkout.outcomes", "Checkout attempts by final phase")
	return o
}

// Reference is the correlation id that ties a payment to its order.
func Reference(tableID string, at time.Time) string {
	return fmt.Sprintf("TABLE_%s_%d", tableID, at.UnixMilli())
}

func (o *Orchestrator) SubmitOrderWithPayment(ctx context.Context, cart Cart, info PaymentInfo) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "checkout.submit", trace.WithAttributes(
		attribute.String("table.id", cart.TableID),
		attribute.String("payment.method", string(info.Method)),
	))
	defer span.End()

	reference := Reference(cart.TableID, o.now())
	logger := o.logger.With("reference", reference, "table_id", cart.TableID)
	span.SetAttributes(attribute.String("checkout.reference", reference))

	phase := PhaseIdle
	enter := func(p Phase) {
		logger.Info("checkout phase", "from", phase, "to", p)
		span.AddEvent(string(p))
		phase = p
	}
	finish := func(final Phase, err error) {
		o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(final))))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	enter(PhaseValidatingInput)
	info, err := validate(cart, info)
	if err != nil {
		enter(PhaseValidationFailed)
		enter(PhaseAborted)
		finish(PhaseValidationFailed, err)
		return nil, err
	}

	total := cart.Total()

	enter(PhaseAwaitingGateway)
	req := domain.PaymentRequest{
		Amount:       total,
		Currency:     domain.CurrencyUGX,
		Method:       info.Method,
		OrderID:      reference,
		CustomerName: info.Name,
		Description:  fmt.Sprintf("Order for Table %s", cart.TableID),
	}
	if info.Method.MobileMoney() {
		req.PhoneNumber = info.Phone
	}

	resp, err := o.gateway.ProcessPayment(ctx, req)
	if err != nil || !resp.Success {
		gerr := &GatewayError{Err: err}
		if err == nil {
			gerr.Response = &resp
		}
		enter(PhaseGatewayFailed)
		enter(PhaseAborted)
		logger.Warn("payment not completed", "error", gerr)
		finish(PhaseGatewayFailed, gerr)
		return nil, gerr
	}
	enter(PhaseGatewaySucceeded)

	sub := submission(cart, info, total, reference)

	enter(PhaseSubmittingOrder)
	orderID, err := o.submit(ctx, logger, sub)
	if err != nil {
		enter(PhaseSubmissionFailed)
		serr := o.escalate(ctx, logger, sub, resp, err)
		finish(PhaseSubmissionFailed, serr)
		return nil, serr
	}
	enter(PhaseOrderCreated)
	span.SetAttributes(attribute.Int64("order.id", orderID))

	o.bus.NotifyNewOrder(cart.TableID, orderID, total)
	o.bus.NotifyPaymentSuccess(cart.TableID, orderID, info.Method, total)

	finish(PhaseOrderCreated, nil)
	return &Receipt{
		OrderID:   orderID,
		Reference: reference,
		TableID:   cart.TableID,
		Total:     total,
		Payment:   resp,
	}, nil
}

func validate(cart Cart, info PaymentInfo) (PaymentInfo, error) {
	if strings.TrimSpace(cart.TableID) == "" {
		return info, &ValidationError{Field: "table_id", Reason: "is required"}
	}
	if len(cart.Lines) == 0 {
		return info, &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	for i, l := range cart.Lines {
		if l.Quantity <= 0 {
			return info, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}
		if l.Price.IsNegative() {
			return info, &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Reason: "must not be negative"}
		}
	}
	if !info.Method.Valid() {
		return info, &ValidationError{Field: "payment_method", Reason: fmt.Sprintf("unsupported method %q", info.Method)}
	}

	info.Name = strings.TrimSpace(info.Name)
	if !info.Method.MobileMoney() {
		if info.Name == "" {
			info.Name = defaultCustomerName
		}
		return info, nil
	}

	if info.Name == "" {
		return info, &ValidationError{Field: "name", Reason: "is required for mobile money"}
	}
	if strings.TrimSpace(info.Phone) == "" {
		return info, &ValidationError{Field: "phone", Reason: "is required for mobile money"}
	}
	if !payment.ValidatePhone(info.Phone) {
		return info, &ValidationError{Field: "phone", Reason: "is not a valid Uganda mobile number"}
	}
	if network, _ := payment.DetectMethod(info.Phone); network != info.Method {
		return info, &ValidationError{Field: "phone", Reason: fmt.Sprintf("is not on the %s network", info.Method.Display())}
	}
	info.Phone = payment.FormatPhone(info.Phone)
	return info, nil
}

func submission(cart Cart, info PaymentInfo, total decimal.Decimal, reference string) domain.OrderSubmission {
	items := make([]domain.SubmissionItem, len(cart.Lines))
	for i, l := range cart.Lines {
		items[i] = domain.SubmissionItem{
			MenuItemID:      l.MenuItemID,
			Name:            l.Name,
			Quantity:        l.Quantity,
			Price:           l.Price,
			SpecialRequests: l.SpecialRequest,
		}
	}
	return domain.OrderSubmission{
		TableID:       cart.TableID,
		Items:         items,
		TotalAmount:   total,
		Status:        domain.OrderStatusPending,
		PaymentMethod: info.Method,
		CustomerName:  info.Name,
		CustomerPhone: info.Phone,
		CustomerEmail: info.Email,
		Reference:     reference,
	}
}

// submit writes the order, retrying transient failures. A retry first looks
// the reference up so an order the store did write is not written twice.
func (o *Orchestrator) submit(ctx context.Context, logger *slog.Logger, sub domain.OrderSubmission) (int64, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.retryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	var orderID int64
	op := func() error {
		attempt++
		if attempt > 1 {
			existing, err := o.store.FindOrderByReference(ctx, sub.Reference)
			if err != nil {
				if !remote.IsTransient(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			if existing != nil {
				logger.Info("order found on retry", "order_id", existing.ID, "attempt", attempt)
				orderID = existing.ID
				return nil
			}
		}

		id, err := o.store.CreateOrder(ctx, sub)
		if err != nil {
			if !remote.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		orderID = id
		return nil
	}

	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(o.submitRetries, 0))), ctx),
		func(err error, wait time.Duration) {
			logger.Warn("order submission failed, retrying", "error", err, "attempt", attempt, "wait", wait)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("submit order after %d attempts: %w", attempt, err)
	}
	return orderID, nil
}

func (o *Orchestrator) escalate(ctx context.Context, logger *slog.Logger, sub domain.OrderSubmission, resp domain.PaymentResponse, cause error) *SubmissionError {
	serr := &SubmissionError{Reference: sub.Reference, Payment: resp, Err: cause}
	if o.ledger == nil {
		logger.Error("paid order not submitted and no ledger configured", "error", cause, "transaction_id", resp.TransactionID)
		return serr
	}

	now := o.now().UTC()
	entry := domain.UnreconciledPayment{
		Reference:  sub.Reference,
		TableID:    sub.TableID,
		Submission: sub,
		Payment:    resp,
		LastError:  cause.Error(),
		Attempts:   1,
		Status:     domain.LedgerPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The caller may have gone away; the ledger write must still happen.
	if err := o.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		serr.Err = multierr.Append(cause, fmt.Errorf("record unreconciled payment: %w", err))
		logger.Error("failed to escalate paid order", "error", serr.Err, "transaction_id", resp.TransactionID)
		return serr
	}

	serr.Escalated = true
	logger.Error("paid order escalated for reconciliation", "error", cause, "transaction_id", resp.TransactionID)
	return serr
}
