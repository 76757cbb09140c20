package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

// Repository stores paid orders that still need to reach the remote store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record adds p to the ledger. Recording the same reference twice keeps the
// first entry.
func (r *Repository) Record(ctx context.Context, p domain.UnreconciledPayment) error {
	submission, err := json.Marshal(p.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	payment, err := json.Marshal(p.Payment)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}

	status := p.Status
	if status == "" {
		status = domain.LedgerPending
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ledger.unreconciled_payments
			(reference, table_id, submission, payment, transaction_id, last_error, attempts, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (reference) DO NOTHING
	`, p.Reference, p.TableID, submission, payment, p.Payment.TransactionID, p.LastError, p.Attempts, status, p.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, reference string) (*domain.UnreconciledPayment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT reference, table_id, submission, payment, last_error, attempts, status, order_id, created_at, updated_at
		FROM ledger.unreconciled_payments
		WHERE reference = $1
	`, reference)

	p, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListPending returns up to limit unresolved entries, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]domain.UnreconciledPayment, error) {
	return r.ListByStatus(ctx, []domain.LedgerStatus{domain.LedgerPending}, limit)
}

func (r *Repository) ListByStatus(ctx context.Context, statuses []domain.LedgerStatus, limit int) ([]domain.UnreconciledPayment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT reference, table_id, submission, payment, last_error, attempts, status, order_id, created_at, updated_at
		FROM ledger.unreconciled_payments
		WHERE status = ANY($1)
		ORDER BY created_at
		LIMIT $2
	`, pq.Array(names), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.UnreconciledPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordAttempt counts one more failed reconciliation and returns the new
// attempt total.
func (r *Repository) RecordAttempt(ctx context.Context, reference, lastError string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE ledger.unreconciled_payments
		SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE reference = $1
		RETURNING attempts
	`, reference, lastError).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("ledger entry %s not found", reference)
	}
	return attempts, err
}

func (r *Repository) MarkResolved(ctx context.Context, reference string, orderID int64) error {
	return r.setStatus(ctx, `
		UPDATE ledger.unreconciled_payments
		SET status = 'resolved', order_id = $2, updated_at = NOW()
		WHERE reference = $1
	`, reference, orderID)
}

func (r *Repository) MarkEscalated(ctx context.Context, reference string) error {
	return r.setStatus(ctx, `
		UPDATE ledger.unreconciled_payments
		SET status = 'escalated', updated_at = NOW()
		WHERE reference = $1
	`, reference)
}

func (r *Repository) setStatus(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ledger entry %v not found", args[0])
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*domain.UnreconciledPayment, error) {
	var (
		p          domain.UnreconciledPayment
		submission []byte
		payment    []byte
		orderID    sql.NullInt64
	)
	if err := s.Scan(&p.Reference, &p.TableID, &submission, &payment, &p.LastError,
		&p.Attempts, &p.Status, &orderID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(submission, &p.Submission); err != nil {
		return nil, fmt.Errorf("unmarshal submission for %s: %w", p.Reference, err)
	}
	if err := json.Unmarshal(payment, &p.Payment); err != nil {
		return nil, fmt.Errorf("unmarshal payment for %s: %w", p.Reference, err)
	}
	if orderID.Valid {
		id := orderID.Int64
		p.OrderID = &id
	}
	return &p, nil
}
