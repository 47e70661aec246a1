package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

var (
	ErrNotFound      = errors.New("usage: counter not found")
	ErrQuotaExceeded = errors.New("usage: quota exceeded")
)

// column pairs per kind; limits live in the same row so the check-and-
// increment is one statement.
var kindColumns = map[Kind]struct{ used, limit string }{
	KindJobPosting:      {"job_postings_used", "job_posts_limit"},
	KindFeaturedJob:     {"featured_jobs_used", "featured_jobs_limit"},
	KindCVDownload:      {"cv_downloads_used", "cv_downloads_limit"},
	KindCandidateSearch: {"candidate_searches_used", "candidate_searches_limit"},
}

type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

func (r *Repo) Init(ctx context.Context, subscriptionID string, ents plans.Entitlements) error {
	const q = `
INSERT INTO usage_counters
  (subscription_id, job_postings_used, featured_jobs_used,
   cv_downloads_used, candidate_searches_used,
   job_posts_limit, featured_jobs_limit, cv_downloads_limit,
   candidate_searches_limit)
VALUES ($1, 0, 0, 0, 0, $2, $3, $4, $5)
ON CONFLICT (subscription_id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, subscriptionID,
		ents.JobPostsLimit, ents.FeaturedJobs, ents.CVDownloads, ents.CandidateSearches)
	return err
}

// TryConsume atomically checks used+amount against the limit and increments.
// An unbounded limit (negative) always passes. Two concurrent calls sitting
// one below the limit can never both succeed: the WHERE clause re-evaluates
// against the committed row.
func (r *Repo) TryConsume(ctx context.Context, subscriptionID string, kind Kind, amount int64) (int64, error) {
	cols, ok := kindColumns[kind]
	if !ok {
		return 0, fmt.Errorf("usage: unknown kind %q", kind)
	}
	q := fmt.Sprintf(`
UPDATE usage_counters
SET %[1]s = %[1]s + $2, updated_at = NOW()
WHERE subscription_id = $1
  AND (%[2]s < 0 OR %[1]s + $2 <= %[2]s)
RETURNING CASE WHEN %[2]s < 0 THEN -1 ELSE %[2]s - %[1]s END`,
		cols.used, cols.limit)

	var remaining int64
	err := r.db.QueryRow(ctx, q, subscriptionID, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// Zero rows: distinguish a missing counter from an exhausted quota.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM usage_counters WHERE subscription_id=$1)`,
		subscriptionID,
	).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrQuotaExceeded
}

// Reset zeroes all counters and replaces the limit snapshot. Called on
// renewal and on plan change.
func (r *Repo) Reset(ctx context.Context, subscriptionID string, ents plans.Entitlements) error {
	const q = `
UPDATE usage_counters
SET job_postings_used=0, featured_jobs_used=0,
    cv_downloads_used=0, candidate_searches_used=0,
    job_posts_limit=$2, featured_jobs_limit=$3,
    cv_downloads_limit=$4, candidate_searches_limit=$5,
    updated_at=NOW()
WHERE subscription_id=$1`
	tag, err := r.db.Exec(ctx, q, subscriptionID,
		ents.JobPostsLimit, ents.FeaturedJobs, ents.CVDownloads, ents.CandidateSearches)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, subscriptionID string) (*Counter, error) {
	const q = `
SELECT subscription_id, job_postings_used, featured_jobs_used,
       cv_downloads_used, candidate_searches_used,
       job_posts_limit, featured_jobs_limit, cv_downloads_limit,
       candidate_searches_limit, updated_at
FROM usage_counters
WHERE subscription_id=$1`
	var c Counter
	err := r.db.QueryRow(ctx, q, subscriptionID).Scan(
		&c.SubscriptionID,
		&c.JobPostingsUsed,
		&c.FeaturedJobsUsed,
		&c.CVDownloadsUsed,
		&c.CandidateSearchesUsed,
		&c.Limits.JobPostsLimit,
		&c.Limits.FeaturedJobs,
		&c.Limits.CVDownloads,
		&c.Limits.CandidateSearches,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
