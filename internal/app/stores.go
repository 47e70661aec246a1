package app

import (
	"context"
	"time"

	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
)

// Store interfaces the services need. Satisfied by both the pgx repositories
// and the in-memory stores in the domain packages.

type PlanStore interface {
	ListActive(ctx context.Context) ([]plans.Plan, error)
	GetByID(ctx context.Context, id int64) (*plans.Plan, error)
	Upsert(ctx context.Context, p *plans.Plan) (*plans.Plan, error)
	Deactivate(ctx context.Context, id int64) error
}

type SubscriptionStore interface {
	Create(ctx context.Context, s *subscriptions.Subscription) error
	GetByID(ctx context.Context, id string) (*subscriptions.Subscription, error)
	GetActiveByRecruiter(ctx context.Context, recruiterID string) (*subscriptions.Subscription, error)
	List(ctx context.Context) ([]subscriptions.Subscription, error)
	Activate(ctx context.Context, id string) error
	Cancel(ctx context.Context, id, reason string) error
	Expire(ctx context.Context, id string) error
	ExpireDue(ctx context.Context, now time.Time) ([]subscriptions.Subscription, error)
	ListRenewalDue(ctx context.Context, now time.Time) ([]subscriptions.Subscription, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]subscriptions.Subscription, error)
	ExtendPeriod(ctx context.Context, id string, newEnd time.Time) error
	ChangePlan(ctx context.Context, id string, next *subscriptions.Subscription) error
	Reactivate(ctx context.Context, id string, newEnd time.Time) error
	OverrideStatus(ctx context.Context, id string, to subscriptions.Status) error
	SetAutoRenewal(ctx context.Context, id string, autoRenew bool) error
	SetPaymentStatus(ctx context.Context, id string, ps subscriptions.PaymentStatus) error
	CountPendingByPlan(ctx context.Context, planID int64) (int, error)
}

type UsageStore interface {
	Init(ctx context.Context, subscriptionID string, ents plans.Entitlements) error
	TryConsume(ctx context.Context, subscriptionID string, kind usage.Kind, amount int64) (int64, error)
	Reset(ctx context.Context, subscriptionID string, ents plans.Entitlements) error
	Get(ctx context.Context, subscriptionID string) (*usage.Counter, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *payments.Payment) error
	GetByID(ctx context.Context, id string) (*payments.Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]payments.Payment, error)
	List(ctx context.Context) ([]payments.Payment, error)
	PendingBySubscription(ctx context.Context, subscriptionID string) (*payments.Payment, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]payments.Payment, error)
	Resolve(ctx context.Context, id string, to payments.Status, transactionID, reason string) error
	MarkRefunded(ctx context.Context, id string) error
}

// Alerts pushes operator-facing notifications. Implemented by notify.Telegram;
// a nil-safe no-op is used when alerting is not configured.
type Alerts interface {
	PaymentFailed(subscriptionID, recruiterID, reason string, amountCents int64)
	AdminAction(actor, action, subscriptionID string)
	SweepSummary(expired, renewed, reconciled int)
}

type noopAlerts struct{}

func (noopAlerts) PaymentFailed(string, string, string, int64) {}
func (noopAlerts) AdminAction(string, string, string)          {}
func (noopAlerts) SweepSummary(int, int, int)                  {}

// NoopAlerts returns an Alerts sink that discards everything.
func NoopAlerts() Alerts { return noopAlerts{} }
