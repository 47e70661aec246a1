package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("subscriptions: not found")
	// ErrConflict is returned when a conditional transition finds the row in
	// a different state than expected, or when the at-most-one-active
	// invariant would be violated.
	ErrConflict = errors.New("subscriptions: conflicting state")
)

type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const subColumns = `id,recruiter_id,plan_id,status,start_date,end_date,
	auto_renewal,payment_status,cancel_reason,price_cents,duration_days,
	job_posts_limit,featured_jobs,cv_downloads,candidate_searches,
	advanced_analytics,priority_support,created_at,updated_at`

func scanSub(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID,
		&s.RecruiterID,
		&s.PlanID,
		&s.Status,
		&s.StartDate,
		&s.EndDate,
		&s.AutoRenewal,
		&s.PaymentStatus,
		&s.CancelReason,
		&s.PriceCents,
		&s.DurationDays,
		&s.Entitlements.JobPostsLimit,
		&s.Entitlements.FeaturedJobs,
		&s.Entitlements.CVDownloads,
		&s.Entitlements.CandidateSearches,
		&s.Entitlements.AdvancedAnalytics,
		&s.Entitlements.PrioritySupport,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) Create(ctx context.Context, s *Subscription) error {
	const q = `
INSERT INTO subscriptions
  (id, recruiter_id, plan_id, status, start_date, end_date,
   auto_renewal, payment_status, cancel_reason, price_cents, duration_days,
   job_posts_limit, featured_jobs, cv_downloads, candidate_searches,
   advanced_analytics, priority_support)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := r.db.Exec(ctx, q,
		s.ID, s.RecruiterID, s.PlanID, s.Status, s.StartDate, s.EndDate,
		s.AutoRenewal, s.PaymentStatus, s.CancelReason, s.PriceCents, s.DurationDays,
		s.Entitlements.JobPostsLimit, s.Entitlements.FeaturedJobs,
		s.Entitlements.CVDownloads, s.Entitlements.CandidateSearches,
		s.Entitlements.AdvancedAnalytics, s.Entitlements.PrioritySupport,
	)
	return mapUniqueViolation(err)
}

// mapUniqueViolation converts the partial unique index firing (one active
// subscription per recruiter) into ErrConflict.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE id=$1`
	return scanSub(r.db.QueryRow(ctx, q, id))
}

func (r *Repo) GetActiveByRecruiter(ctx context.Context, recruiterID string) (*Subscription, error) {
	q := `SELECT ` + subColumns + `
	      FROM subscriptions
	      WHERE recruiter_id=$1 AND status='active'
	      LIMIT 1`
	return scanSub(r.db.QueryRow(ctx, q, recruiterID))
}

func (r *Repo) List(ctx context.Context) ([]Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions ORDER BY created_at`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Activate moves a pending subscription to active and marks it paid. The
// transition is conditional so a concurrent cancel cannot be overwritten.
func (r *Repo) Activate(ctx context.Context, id string) error {
	const q = `
UPDATE subscriptions
SET status='active', payment_status='paid', updated_at=NOW()
WHERE id=$1 AND status='pending'`
	return r.conditional(ctx, q, id)
}

// Cancel is valid from pending or active and always switches auto-renewal off.
func (r *Repo) Cancel(ctx context.Context, id, reason string) error {
	const q = `
UPDATE subscriptions
SET status='cancelled', auto_renewal=false, cancel_reason=$2, updated_at=NOW()
WHERE id=$1 AND status IN ('pending','active')`
	return r.conditional(ctx, q, id, reason)
}

// Expire moves a single active subscription to expired.
func (r *Repo) Expire(ctx context.Context, id string) error {
	const q = `
UPDATE subscriptions
SET status='expired', updated_at=NOW()
WHERE id=$1 AND status='active'`
	return r.conditional(ctx, q, id)
}

// ExpireDue transitions every overdue non-renewing active subscription to
// expired and returns the affected rows. The status predicate makes the sweep
// idempotent when it overlaps a concurrent cancel or upgrade.
func (r *Repo) ExpireDue(ctx context.Context, now time.Time) ([]Subscription, error) {
	q := `
UPDATE subscriptions
SET status='expired', updated_at=NOW()
WHERE status='active' AND auto_renewal=false AND end_date <= $1
RETURNING ` + subColumns
	rows, err := r.db.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repo) ListRenewalDue(ctx context.Context, now time.Time) ([]Subscription, error) {
	q := `SELECT ` + subColumns + `
	      FROM subscriptions
	      WHERE status='active' AND auto_renewal=true AND end_date <= $1
	      ORDER BY end_date`
	rows, err := r.db.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Subscription, error) {
	q := `SELECT ` + subColumns + `
	      FROM subscriptions
	      WHERE status='pending' AND created_at <= $1
	      ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ExtendPeriod pushes the end date forward after a successful renewal.
func (r *Repo) ExtendPeriod(ctx context.Context, id string, newEnd time.Time) error {
	const q = `
UPDATE subscriptions
SET end_date=$2, payment_status='paid', updated_at=NOW()
WHERE id=$1 AND status='active'`
	return r.conditional(ctx, q, id, newEnd)
}

// ChangePlan swaps the plan reference and snapshot in a single conditional
// update; it fails if the subscription left the active state in the meantime.
func (r *Repo) ChangePlan(ctx context.Context, id string, s *Subscription) error {
	const q = `
UPDATE subscriptions
SET plan_id=$2, end_date=$3, price_cents=$4, duration_days=$5,
    job_posts_limit=$6, featured_jobs=$7, cv_downloads=$8,
    candidate_searches=$9, advanced_analytics=$10, priority_support=$11,
    payment_status='paid', updated_at=NOW()
WHERE id=$1 AND status='active'`
	return r.conditional(ctx, q, id,
		s.PlanID, s.EndDate, s.PriceCents, s.DurationDays,
		s.Entitlements.JobPostsLimit, s.Entitlements.FeaturedJobs,
		s.Entitlements.CVDownloads, s.Entitlements.CandidateSearches,
		s.Entitlements.AdvancedAnalytics, s.Entitlements.PrioritySupport,
	)
}

// Reactivate is the admin override path out of a terminal state.
func (r *Repo) Reactivate(ctx context.Context, id string, newEnd time.Time) error {
	const q = `
UPDATE subscriptions
SET status='active', end_date=$2, cancel_reason='', updated_at=NOW()
WHERE id=$1 AND status IN ('expired','cancelled')`
	return r.conditional(ctx, q, id, newEnd)
}

// OverrideStatus sets the status unconditionally. Support-case escape hatch,
// exposed to admins only.
func (r *Repo) OverrideStatus(ctx context.Context, id string, to Status) error {
	const q = `UPDATE subscriptions SET status=$2, updated_at=NOW() WHERE id=$1`
	tag, err := r.db.Exec(ctx, q, id, to)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetAutoRenewal(ctx context.Context, id string, autoRenew bool) error {
	const q = `
UPDATE subscriptions SET auto_renewal=$2, updated_at=NOW()
WHERE id=$1 AND status IN ('pending','active')`
	return r.conditional(ctx, q, id, autoRenew)
}

func (r *Repo) SetPaymentStatus(ctx context.Context, id string, ps PaymentStatus) error {
	const q = `UPDATE subscriptions SET payment_status=$2, updated_at=NOW() WHERE id=$1`
	tag, err := r.db.Exec(ctx, q, id, ps)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CountPendingByPlan(ctx context.Context, planID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE plan_id=$1 AND status='pending'`,
		planID,
	).Scan(&n)
	return n, err
}

// conditional runs a guarded UPDATE and classifies a zero-row result: missing
// row means not found, anything else lost the state-machine race.
func (r *Repo) conditional(ctx context.Context, q, id string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscriptions WHERE id=$1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
