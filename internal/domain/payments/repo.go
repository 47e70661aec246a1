package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("payments: not found")
	// ErrImmutable is returned when a status update targets a row already in
	// a terminal state.
	ErrImmutable = errors.New("payments: record is immutable")
)

type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const payColumns = `id,subscription_id,amount_cents,currency,method,status,
	transaction_id,failure_reason,reversal_of,created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var reversal *string
	err := row.Scan(
		&p.ID,
		&p.SubscriptionID,
		&p.AmountCents,
		&p.Currency,
		&p.Method,
		&p.Status,
		&p.TransactionID,
		&p.FailureReason,
		&reversal,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if reversal != nil {
		p.ReversalOf = *reversal
	}
	return &p, nil
}

func (r *Repo) Create(ctx context.Context, p *Payment) error {
	const q = `
INSERT INTO payments
  (id, subscription_id, amount_cents, currency, method, status,
   transaction_id, failure_reason, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	var reversal *string
	if p.ReversalOf != "" {
		reversal = &p.ReversalOf
	}
	_, err := r.db.Exec(ctx, q,
		p.ID, p.SubscriptionID, p.AmountCents, p.Currency, p.Method, p.Status,
		p.TransactionID, p.FailureReason, reversal)
	return err
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Payment, error) {
	q := `SELECT ` + payColumns + ` FROM payments WHERE id=$1`
	return scanPayment(r.db.QueryRow(ctx, q, id))
}

func (r *Repo) ListBySubscription(ctx context.Context, subscriptionID string) ([]Payment, error) {
	q := `SELECT ` + payColumns + `
	      FROM payments WHERE subscription_id=$1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *Repo) List(ctx context.Context) ([]Payment, error) {
	q := `SELECT ` + payColumns + ` FROM payments ORDER BY created_at`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// PendingBySubscription returns the open charge attempt for a subscription,
// if any. Used by the reconciliation sweep.
func (r *Repo) PendingBySubscription(ctx context.Context, subscriptionID string) (*Payment, error) {
	q := `SELECT ` + payColumns + `
	      FROM payments
	      WHERE subscription_id=$1 AND status='pending'
	      ORDER BY created_at DESC
	      LIMIT 1`
	return scanPayment(r.db.QueryRow(ctx, q, subscriptionID))
}

// ListPendingOlderThan returns every charge attempt still unresolved at the
// cutoff, regardless of what state its subscription is in.
func (r *Repo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Payment, error) {
	q := `SELECT ` + payColumns + `
	      FROM payments
	      WHERE status='pending' AND created_at <= $1
	      ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Resolve finalizes a pending payment. Terminal rows are left alone.
func (r *Repo) Resolve(ctx context.Context, id string, to Status, transactionID, reason string) error {
	const q = `
UPDATE payments
SET status=$2, transaction_id=$3, failure_reason=$4
WHERE id=$1 AND status='pending'`
	tag, err := r.db.Exec(ctx, q, id, to, transactionID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE id=$1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrImmutable
}

// MarkRefunded flips a completed charge to refunded. The reversal row itself
// is written separately by the ledger.
func (r *Repo) MarkRefunded(ctx context.Context, id string) error {
	const q = `UPDATE payments SET status='refunded' WHERE id=$1 AND status='completed'`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImmutable
	}
	return nil
}

func collect(rows pgx.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
