package plans

import "time"

// Unbounded marks an entitlement that has no quota.
const Unbounded int64 = -1

// Entitlements is the quota record a plan grants. Subscriptions copy it by
// value at subscribe time, so later plan edits never touch an issued
// subscription.
type Entitlements struct {
	JobPostsLimit     int64 `json:"job_posts_limit"`
	FeaturedJobs      int64 `json:"featured_jobs"`
	CVDownloads       int64 `json:"cv_downloads"`
	CandidateSearches int64 `json:"candidate_searches"`
	AdvancedAnalytics bool  `json:"advanced_analytics"`
	PrioritySupport   bool  `json:"priority_support"`
}

type Plan struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	PriceCents   int64        `json:"price_cents"`
	DurationDays int          `json:"duration_days"`
	IsActive     bool         `json:"is_active"`
	Entitlements Entitlements `json:"entitlements"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
