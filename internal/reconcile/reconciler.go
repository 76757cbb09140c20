// Package reconcile keeps the ledger of paid orders that never reached the
// remote store and retries them until they land or need a human.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/notify"
)

var tracer = otel.Tracer("tableflow/reconcile")

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 5
	DefaultBatchSize   = 50
)

type Ledger interface {
	ListPending(ctx context.Context, limit int) ([]domain.UnreconciledPayment, error)
	RecordAttempt(ctx context.Context, reference, lastError string) (int, error)
	MarkResolved(ctx context.Context, reference string, orderID int64) error
	MarkEscalated(ctx context.Context, reference string) error
}

type Store interface {
	CreateOrder(ctx context.Context, sub domain.OrderSubmission) (int64, error)
	FindOrderByReference(ctx context.Context, reference string) (*domain.TableOrder, error)
}

type Option func(*Reconciler)

func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithMaxAttempts sets the attempt count at which an entry is escalated.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) { r.maxAttempts = n }
}

func WithBatchSize(n int) Option {
	return func(r *Reconciler) { r.batchSize = n }
}

type Reconciler struct {
	ledger Ledger
	store  Store
	bus    *notify.Bus
	logger *slog.Logger

	interval    time.Duration
	maxAttempts int
	batchSize   int
}

// NewReconciler builds a reconciler. bus may be nil when no terminal is
// listening in this process.
func NewReconciler(ledger Ledger, store Store, bus *notify.Bus, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:      ledger,
		store:       store,
		bus:         bus,
		logger:      logger,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Summary struct {
	Resolved  int `json:"resolved"`
	Retrying  int `json:"retrying"`
	Escalated int `json:"escalated"`
}

// Run reconciles once per interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		summary, err := r.ReconcileOnce(ctx)
		if err != nil {
			r.logger.Error("reconciliation pass failed", "error", err)
		} else if summary != (Summary{}) {
			r.logger.Info("reconciliation pass complete",
				"resolved", summary.Resolved, "retrying", summary.Retrying, "escalated", summary.Escalated)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "reconcile.pass")
	defer span.End()

	var summary Summary
	pending, err := r.ledger.ListPending(ctx, r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list pending payments: %w", err)
	}
	span.SetAttributes(attribute.Int("reconcile.pending", len(pending)))

	var errs error
	for _, p := range pending {
		outcome, err := r.reconcile(ctx, p)
		switch outcome {
		case domain.LedgerResolved:
			summary.Resolved++
		case domain.LedgerEscalated:
			summary.Escalated++
		default:
			summary.Retrying++
		}
		errs = multierr.Append(errs, err)
	}
	return summary, errs
}

func (r *Reconciler) reconcile(ctx context.Context, p domain.UnreconciledPayment) (domain.LedgerStatus, error) {
	ctx, span := tracer.Start(ctx, "reconcile.entry", trace.WithAttributes(
		attribute.String("checkout.reference", p.Reference),
	))
	defer span.End()

	logger := r.logger.With("reference", p.Reference, "table_id", p.TableID, "transaction_id", p.Payment.TransactionID)

	orderID, err := r.submit(ctx, p)
	if err == nil {
		if err := r.ledger.MarkResolved(ctx, p.Reference, orderID); err != nil {
			return domain.LedgerPending, fmt.Errorf("mark %s resolved: %w", p.Reference, err)
		}
		logger.Info("paid order reconciled", "order_id", orderID)
		if r.bus != nil {
			total := p.Submission.TotalAmount
			r.bus.NotifyNewOrder(p.TableID, orderID, total)
			r.bus.NotifyPaymentSuccess(p.TableID, orderID, p.Submission.PaymentMethod, total)
		}
		return domain.LedgerResolved, nil
	}

	attempts, aerr := r.ledger.RecordAttempt(ctx, p.Reference, err.Error())
	if aerr != nil {
		return domain.LedgerPending, fmt.Errorf("record attempt for %s: %w", p.Reference, aerr)
	}
	if attempts < r.maxAttempts {
		logger.Warn("paid order still not submitted", "error", err, "attempts", attempts)
		return domain.LedgerPending, nil
	}

	if err := r.ledger.MarkEscalated(ctx, p.Reference); err != nil {
		return domain.LedgerPending, fmt.Errorf("mark %s escalated: %w", p.Reference, err)
	}
	logger.Error("paid order needs manual follow-up", "error", err, "attempts", attempts)
	return domain.LedgerEscalated, nil
}

func (r *Reconciler) submit(ctx context.Context, p domain.UnreconciledPayment) (int64, error) {
	existing, err := r.store.FindOrderByReference(ctx, p.Reference)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return r.store.CreateOrder(ctx, p.Submission)
}
