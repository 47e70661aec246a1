package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

// Catalog manages the service plan registry. Plans are deactivated, never
// deleted, so historical subscriptions keep a valid reference.
type Catalog struct {
	plans PlanStore
	subs  SubscriptionStore
	log   *slog.Logger
}

func NewCatalog(planStore PlanStore, subStore SubscriptionStore, log *slog.Logger) *Catalog {
	return &Catalog{plans: planStore, subs: subStore, log: log}
}

func (c *Catalog) ListActivePlans(ctx context.Context) ([]plans.Plan, error) {
	out, err := c.plans.ListActive(ctx)
	return out, mapStoreErr(err)
}

func (c *Catalog) GetPlan(ctx context.Context, id int64) (*plans.Plan, error) {
	p, err := c.plans.GetByID(ctx, id)
	return p, mapStoreErr(err)
}

// UpsertPlan validates and creates or edits a plan. Editing never touches
// entitlement snapshots already copied onto subscriptions.
func (c *Catalog) UpsertPlan(ctx context.Context, actor string, p *plans.Plan) (*plans.Plan, error) {
	if err := validatePlan(p); err != nil {
		return nil, err
	}
	saved, err := c.plans.Upsert(ctx, p)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	c.log.Info("plan upserted",
		"actor", actor, "plan_id", saved.ID, "name", saved.Name,
		"price_cents", saved.PriceCents, "active", saved.IsActive)
	return saved, nil
}

// DeactivatePlan refuses while a pending subscription still references the
// plan; that subscription has to complete or cancel first.
func (c *Catalog) DeactivatePlan(ctx context.Context, actor string, id int64) error {
	if _, err := c.plans.GetByID(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	n, err := c.subs.CountPendingByPlan(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d pending subscription(s) still reference plan %d", ErrConflict, n, id)
	}
	if err := c.plans.Deactivate(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	c.log.Info("plan deactivated", "actor", actor, "plan_id", id)
	return nil
}

func validatePlan(p *plans.Plan) error {
	if p.Name == "" {
		return validationf("plan name is required")
	}
	if p.PriceCents < 0 {
		return validationf("price must be >= 0")
	}
	if p.DurationDays < 1 {
		return validationf("duration_days must be >= 1")
	}
	e := p.Entitlements
	if e.JobPostsLimit != plans.Unbounded && e.JobPostsLimit < 1 {
		return validationf("job_posts_limit must be >= 1 or unbounded")
	}
	for name, v := range map[string]int64{
		"featured_jobs":      e.FeaturedJobs,
		"cv_downloads":       e.CVDownloads,
		"candidate_searches": e.CandidateSearches,
	} {
		if v != plans.Unbounded && v < 0 {
			return validationf("%s must be >= 0 or unbounded", name)
		}
	}
	return nil
}
