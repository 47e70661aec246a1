package usage

import (
	"time"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

// Kind names one metered entitlement.
type Kind string

const (
	KindJobPosting      Kind = "job_postings"
	KindFeaturedJob     Kind = "featured_jobs"
	KindCVDownload      Kind = "cv_downloads"
	KindCandidateSearch Kind = "candidate_searches"
)

func (k Kind) Valid() bool {
	switch k {
	case KindJobPosting, KindFeaturedJob, KindCVDownload, KindCandidateSearch:
		return true
	}
	return false
}

// Counter holds per-subscription consumption next to the limit snapshot it is
// checked against. Limits are replaced wholesale on renewal or plan change.
type Counter struct {
	SubscriptionID        string             `json:"subscription_id"`
	JobPostingsUsed       int64              `json:"job_postings_used"`
	FeaturedJobsUsed      int64              `json:"featured_jobs_used"`
	CVDownloadsUsed       int64              `json:"cv_downloads_used"`
	CandidateSearchesUsed int64              `json:"candidate_searches_used"`
	Limits                plans.Entitlements `json:"limits"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Used returns the consumed amount for one kind.
func (c *Counter) Used(k Kind) int64 {
	switch k {
	case KindJobPosting:
		return c.JobPostingsUsed
	case KindFeaturedJob:
		return c.FeaturedJobsUsed
	case KindCVDownload:
		return c.CVDownloadsUsed
	case KindCandidateSearch:
		return c.CandidateSearchesUsed
	}
	return 0
}

// Limit returns the limit snapshot for one kind; plans.Unbounded means none.
func (c *Counter) Limit(k Kind) int64 {
	return limitFor(c.Limits, k)
}

// Remaining returns the quota left for one kind, plans.Unbounded when the
// entitlement has no limit.
func (c *Counter) Remaining(k Kind) int64 {
	limit := c.Limit(k)
	if limit == plans.Unbounded {
		return plans.Unbounded
	}
	rem := limit - c.Used(k)
	if rem < 0 {
		rem = 0
	}
	return rem
}

func limitFor(e plans.Entitlements, k Kind) int64 {
	switch k {
	case KindJobPosting:
		return e.JobPostsLimit
	case KindFeaturedJob:
		return e.FeaturedJobs
	case KindCVDownload:
		return e.CVDownloads
	case KindCandidateSearch:
		return e.CandidateSearches
	}
	return 0
}
