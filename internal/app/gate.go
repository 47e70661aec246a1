package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
	"github.com/talentgate/subscription-engine/internal/infra/metrics"
)

// Action is a quota-consuming feature request.
type Action string

const (
	ActionPostJob         Action = "post_job"
	ActionFeatureJob      Action = "feature_job"
	ActionDownloadCV      Action = "download_cv"
	ActionSearchCandidate Action = "search_candidate"
)

var actionKinds = map[Action]usage.Kind{
	ActionPostJob:         usage.KindJobPosting,
	ActionFeatureJob:      usage.KindFeaturedJob,
	ActionDownloadCV:      usage.KindCVDownload,
	ActionSearchCandidate: usage.KindCandidateSearch,
}

// Gate is the single choke point every quota-consuming feature passes
// through. No feature may touch the meter directly.
type Gate struct {
	subs  SubscriptionStore
	usage UsageStore
	log   *slog.Logger
}

// NewGate builds the entitlement gate.
func NewGate(subStore SubscriptionStore, usageStore UsageStore, log *slog.Logger) *Gate {
	return &Gate{subs: subStore, usage: usageStore, log: log}
}

// Authorize admits or denies one action for a recruiter. On success the
// matching counter has already been incremented atomically and the remaining
// quota is returned (plans.Unbounded for unlimited entitlements).
func (g *Gate) Authorize(ctx context.Context, recruiterID string, action Action) (int64, error) {
	kind, ok := actionKinds[action]
	if !ok {
		return 0, validationf("unknown action %q", action)
	}

	sub, err := g.subs.GetActiveByRecruiter(ctx, recruiterID)
	if err != nil {
		if errors.Is(err, subscriptions.ErrNotFound) {
			metrics.GateDecisions.WithLabelValues(string(action), string(DenialNoSubscription)).Inc()
			return 0, denied(DenialNoSubscription)
		}
		return 0, err
	}

	remaining, err := g.usage.TryConsume(ctx, sub.ID, kind, 1)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) || errors.Is(err, usage.ErrNotFound) {
			// A missing counter means the subscription never completed
			// activation; nothing is consumable on that record.
			reason := DenialQuotaExceeded
			if errors.Is(err, usage.ErrNotFound) {
				reason = DenialNoSubscription
			}
			metrics.GateDecisions.WithLabelValues(string(action), string(reason)).Inc()
			g.log.Info("action denied",
				"recruiter_id", recruiterID, "action", string(action), "reason", string(reason))
			return 0, denied(reason)
		}
		return 0, err
	}

	metrics.GateDecisions.WithLabelValues(string(action), "allowed").Inc()
	return remaining, nil
}

// UsageFor returns the recruiter's current counter snapshot, for display.
// Reads go straight to the store and never block the consuming path.
func (g *Gate) UsageFor(ctx context.Context, recruiterID string) (*usage.Counter, error) {
	sub, err := g.subs.GetActiveByRecruiter(ctx, recruiterID)
	if err != nil {
		if errors.Is(err, subscriptions.ErrNotFound) {
			return nil, denied(DenialNoSubscription)
		}
		return nil, err
	}
	c, err := g.usage.Get(ctx, sub.ID)
	return c, mapStoreErr(err)
}
