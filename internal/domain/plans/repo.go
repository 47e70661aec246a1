package plans

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("plans: not found")

type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const planColumns = `id,name,price_cents,duration_days,is_active,
	job_posts_limit,featured_jobs,cv_downloads,candidate_searches,
	advanced_analytics,priority_support,created_at,updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PriceCents,
		&p.DurationDays,
		&p.IsActive,
		&p.Entitlements.JobPostsLimit,
		&p.Entitlements.FeaturedJobs,
		&p.Entitlements.CVDownloads,
		&p.Entitlements.CandidateSearches,
		&p.Entitlements.AdvancedAnalytics,
		&p.Entitlements.PrioritySupport,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListActive(ctx context.Context) ([]Plan, error) {
	q := `SELECT ` + planColumns + `
	      FROM plans
	      WHERE is_active = true
	      ORDER BY price_cents`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans WHERE id=$1`
	return scanPlan(r.db.QueryRow(ctx, q, id))
}

// Upsert inserts a new plan when p.ID is zero, otherwise updates the row in
// place. Entitlement snapshots already copied onto subscriptions are not
// touched by an update.
func (r *Repo) Upsert(ctx context.Context, p *Plan) (*Plan, error) {
	if p.ID == 0 {
		q := `INSERT INTO plans
		        (name, price_cents, duration_days, is_active,
		         job_posts_limit, featured_jobs, cv_downloads, candidate_searches,
		         advanced_analytics, priority_support)
		      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		      RETURNING ` + planColumns
		return scanPlan(r.db.QueryRow(ctx, q,
			p.Name, p.PriceCents, p.DurationDays, p.IsActive,
			p.Entitlements.JobPostsLimit, p.Entitlements.FeaturedJobs,
			p.Entitlements.CVDownloads, p.Entitlements.CandidateSearches,
			p.Entitlements.AdvancedAnalytics, p.Entitlements.PrioritySupport,
		))
	}
	q := `UPDATE plans
	      SET name=$2, price_cents=$3, duration_days=$4, is_active=$5,
	          job_posts_limit=$6, featured_jobs=$7, cv_downloads=$8,
	          candidate_searches=$9, advanced_analytics=$10, priority_support=$11,
	          updated_at=NOW()
	      WHERE id=$1
	      RETURNING ` + planColumns
	return scanPlan(r.db.QueryRow(ctx, q,
		p.ID, p.Name, p.PriceCents, p.DurationDays, p.IsActive,
		p.Entitlements.JobPostsLimit, p.Entitlements.FeaturedJobs,
		p.Entitlements.CVDownloads, p.Entitlements.CandidateSearches,
		p.Entitlements.AdvancedAnalytics, p.Entitlements.PrioritySupport,
	))
}

func (r *Repo) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plans SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
