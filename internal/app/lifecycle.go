package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
	"github.com/talentgate/subscription-engine/internal/infra/metrics"
)

// Actor labels for transition audit logs.
const (
	ActorScheduler = "scheduler"
)

// LifecycleConfig carries the policy knobs of the state machine.
type LifecycleConfig struct {
	// DowngradeCredit controls whether a negative plan-change delta is
	// recorded as a ledger credit. When false the delta is simply forfeited.
	DowngradeCredit bool
	// PendingRecheckAfter is how old a pending subscription must be before
	// the reconciliation sweep looks it up at the processor.
	PendingRecheckAfter time.Duration
}

// Lifecycle owns the subscription state machine. Every transition is logged
// with before/after status and the triggering actor.
type Lifecycle struct {
	plans  PlanStore
	subs   SubscriptionStore
	usage  UsageStore
	ledger *Ledger
	alerts Alerts
	cfg    LifecycleConfig
	log    *slog.Logger
	now    func() time.Time
}

func NewLifecycle(planStore PlanStore, subStore SubscriptionStore, usageStore UsageStore,
	ledger *Ledger, alerts Alerts, cfg LifecycleConfig, log *slog.Logger) *Lifecycle {
	if alerts == nil {
		alerts = NoopAlerts()
	}
	if cfg.PendingRecheckAfter <= 0 {
		cfg.PendingRecheckAfter = 15 * time.Minute
	}
	return &Lifecycle{
		plans:  planStore,
		subs:   subStore,
		usage:  usageStore,
		ledger: ledger,
		alerts: alerts,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Subscribe creates the only kind of new subscription there is: a fresh
// record in pending, then a charge. A recruiter whose previous subscription
// expired gets a new record, never a resurrected one.
func (l *Lifecycle) Subscribe(ctx context.Context, recruiterID string, planID int64, method string) (*subscriptions.Subscription, error) {
	if recruiterID == "" {
		return nil, validationf("recruiter id is required")
	}
	plan, err := l.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !plan.IsActive {
		return nil, validationf("plan %d is not open for subscription", planID)
	}
	if existing, err := l.subs.GetActiveByRecruiter(ctx, recruiterID); err == nil {
		return nil, fmt.Errorf("%w: recruiter %s already has active subscription %s",
			ErrConflict, recruiterID, existing.ID)
	} else if !errors.Is(err, subscriptions.ErrNotFound) {
		return nil, err
	}

	now := l.now()
	sub := &subscriptions.Subscription{
		ID:            uuid.NewString(),
		RecruiterID:   recruiterID,
		PlanID:        plan.ID,
		Status:        subscriptions.StatusPending,
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, plan.DurationDays),
		AutoRenewal:   true,
		PaymentStatus: subscriptions.PaymentUnpaid,
		PriceCents:    plan.PriceCents,
		DurationDays:  plan.DurationDays,
		Entitlements:  plan.Entitlements,
	}
	if err := l.subs.Create(ctx, sub); err != nil {
		return nil, mapStoreErr(err)
	}
	l.logTransition(recruiterID, sub.ID, "", subscriptions.StatusPending, "subscribe")

	pay, err := l.ledger.Charge(ctx, sub.ID, plan.PriceCents, method)
	if err != nil {
		return nil, err
	}
	switch pay.Status {
	case payments.StatusCompleted:
		if err := l.activate(ctx, sub.ID, recruiterID, sub.Entitlements); err != nil {
			return nil, err
		}
	case payments.StatusFailed:
		if err := l.subs.Cancel(ctx, sub.ID, subscriptions.ReasonPaymentFailed); err != nil {
			return nil, mapStoreErr(err)
		}
		l.logTransition(recruiterID, sub.ID, subscriptions.StatusPending, subscriptions.StatusCancelled, "payment failed")
		l.alerts.PaymentFailed(sub.ID, recruiterID, pay.FailureReason, pay.AmountCents)
	case payments.StatusPending:
		// Outcome unknown; stays pending for the reconciliation sweep.
		l.log.Warn("subscription awaiting payment reconciliation",
			"subscription_id", sub.ID, "payment_id", pay.ID)
	}
	return l.get(ctx, sub.ID)
}

// ChangePlan upgrades or downgrades an active subscription. The price delta
// is the new plan price minus the pro-rated remaining value of the current
// period; the billing cycle restarts at now. On any payment failure the
// subscription is left untouched.
func (l *Lifecycle) ChangePlan(ctx context.Context, subscriptionID string, newPlanID int64, method string) (*subscriptions.Subscription, error) {
	sub, err := l.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptions.StatusActive {
		return nil, fmt.Errorf("%w: plan change requires an active subscription, got %s",
			ErrConflict, sub.Status)
	}
	newPlan, err := l.plans.GetByID(ctx, newPlanID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !newPlan.IsActive {
		return nil, validationf("plan %d is not open for subscription", newPlanID)
	}
	if newPlan.ID == sub.PlanID {
		return nil, validationf("subscription already on plan %d", newPlanID)
	}

	now := l.now()
	credit := proratedRemaining(sub, now)
	delta := newPlan.PriceCents - credit

	if delta > 0 {
		pay, err := l.ledger.Charge(ctx, sub.ID, delta, method)
		if err != nil {
			return nil, err
		}
		if pay.Status == payments.StatusFailed {
			l.alerts.PaymentFailed(sub.ID, sub.RecruiterID, pay.FailureReason, delta)
			return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, pay.FailureReason)
		}
		if pay.Status == payments.StatusPending {
			// Unlike subscribe there is no pending state to park a plan
			// change in; the caller retries once the processor recovers.
			return nil, ErrPaymentPending
		}
	} else if delta < 0 && l.cfg.DowngradeCredit {
		if _, err := l.ledger.RecordCredit(ctx, sub.ID, -delta); err != nil {
			return nil, err
		}
	}

	next := &subscriptions.Subscription{
		PlanID:       newPlan.ID,
		EndDate:      now.AddDate(0, 0, newPlan.DurationDays),
		PriceCents:   newPlan.PriceCents,
		DurationDays: newPlan.DurationDays,
		Entitlements: newPlan.Entitlements,
	}
	if err := l.subs.ChangePlan(ctx, sub.ID, next); err != nil {
		return nil, mapStoreErr(err)
	}
	if err := l.usage.Reset(ctx, sub.ID, newPlan.Entitlements); err != nil {
		return nil, mapStoreErr(err)
	}
	l.log.Info("plan changed",
		"actor", sub.RecruiterID, "subscription_id", sub.ID,
		"from_plan", sub.PlanID, "to_plan", newPlan.ID, "delta_cents", delta)
	return l.get(ctx, sub.ID)
}

// Cancel is valid from pending or active; it never refunds by itself.
func (l *Lifecycle) Cancel(ctx context.Context, actor, subscriptionID, reason string) (*subscriptions.Subscription, error) {
	sub, err := l.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := l.subs.Cancel(ctx, subscriptionID, reason); err != nil {
		return nil, mapStoreErr(err)
	}
	l.logTransition(actor, subscriptionID, sub.Status, subscriptions.StatusCancelled, reason)
	return l.get(ctx, subscriptionID)
}

func (l *Lifecycle) SetAutoRenewal(ctx context.Context, actor, subscriptionID string, autoRenew bool) (*subscriptions.Subscription, error) {
	if err := l.subs.SetAutoRenewal(ctx, subscriptionID, autoRenew); err != nil {
		return nil, mapStoreErr(err)
	}
	l.log.Info("auto renewal set",
		"actor", actor, "subscription_id", subscriptionID, "auto_renewal", autoRenew)
	return l.get(ctx, subscriptionID)
}

// Reactivate is the admin override out of a terminal state: straight back to
// active with no payment cycle. If the period already lapsed it is re-armed
// for one full plan duration so the next sweep does not immediately re-expire
// the subscription.
func (l *Lifecycle) Reactivate(ctx context.Context, actor, subscriptionID string) (*subscriptions.Subscription, error) {
	sub, err := l.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	// The recruiter may have resubscribed since this record went terminal;
	// reviving it would yield two active subscriptions.
	if other, err := l.subs.GetActiveByRecruiter(ctx, sub.RecruiterID); err == nil {
		return nil, fmt.Errorf("%w: recruiter %s already has active subscription %s",
			ErrConflict, sub.RecruiterID, other.ID)
	} else if !errors.Is(err, subscriptions.ErrNotFound) {
		return nil, err
	}
	now := l.now()
	newEnd := sub.EndDate
	if !newEnd.After(now) {
		newEnd = now.AddDate(0, 0, sub.DurationDays)
	}
	if err := l.subs.Reactivate(ctx, subscriptionID, newEnd); err != nil {
		return nil, mapStoreErr(err)
	}
	// A subscription cancelled straight out of pending never had counters.
	if err := l.usage.Init(ctx, subscriptionID, sub.Entitlements); err != nil {
		return nil, mapStoreErr(err)
	}
	l.logTransition(actor, subscriptionID, sub.Status, subscriptions.StatusActive, "admin reactivate")
	l.alerts.AdminAction(actor, "reactivate", subscriptionID)
	return l.get(ctx, subscriptionID)
}

// OverrideStatus sets the status directly for support cases. Logged apart
// from recruiter-initiated transitions.
func (l *Lifecycle) OverrideStatus(ctx context.Context, actor, subscriptionID string, to subscriptions.Status) (*subscriptions.Subscription, error) {
	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}
	sub, err := l.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := l.subs.OverrideStatus(ctx, subscriptionID, to); err != nil {
		return nil, mapStoreErr(err)
	}
	l.log.Warn("status override",
		"actor", actor, "subscription_id", subscriptionID,
		"from", sub.Status, "to", to)
	l.alerts.AdminAction(actor, fmt.Sprintf("override status to %s", to), subscriptionID)
	return l.get(ctx, subscriptionID)
}

// MarkRefunded records the payment standing after an admin-triggered refund.
func (l *Lifecycle) MarkRefunded(ctx context.Context, subscriptionID string, full bool) error {
	ps := subscriptions.PaymentPartial
	if full {
		ps = subscriptions.PaymentRefunded
	}
	return mapStoreErr(l.subs.SetPaymentStatus(ctx, subscriptionID, ps))
}

// SweepExpirations expires every overdue non-renewing active subscription.
// Counters are frozen, not deleted.
func (l *Lifecycle) SweepExpirations(ctx context.Context) (int, error) {
	expired, err := l.subs.ExpireDue(ctx, l.now())
	if err != nil {
		return 0, err
	}
	for _, sub := range expired {
		l.logTransition(ActorScheduler, sub.ID, subscriptions.StatusActive, subscriptions.StatusExpired, "period elapsed")
		metrics.SweepTransitions.WithLabelValues("expired").Inc()
	}
	return len(expired), nil
}

// ProcessRenewals charges every due auto-renewing subscription for another
// period of its current plan. Payment failure expires the subscription.
func (l *Lifecycle) ProcessRenewals(ctx context.Context) (renewed, expired int, err error) {
	due, err := l.subs.ListRenewalDue(ctx, l.now())
	if err != nil {
		return 0, 0, err
	}
	for _, sub := range due {
		ok, rerr := l.renew(ctx, &sub)
		if rerr != nil {
			l.log.Error("renewal errored", "subscription_id", sub.ID, "err", rerr)
			continue
		}
		if ok {
			renewed++
		} else {
			expired++
		}
	}
	return renewed, expired, nil
}

func (l *Lifecycle) renew(ctx context.Context, sub *subscriptions.Subscription) (bool, error) {
	pay, err := l.ledger.Charge(ctx, sub.ID, sub.PriceCents, "auto_renewal")
	if err != nil {
		return false, err
	}
	switch pay.Status {
	case payments.StatusCompleted:
		newEnd := sub.EndDate.AddDate(0, 0, sub.DurationDays)
		if err := l.subs.ExtendPeriod(ctx, sub.ID, newEnd); err != nil {
			if errors.Is(err, subscriptions.ErrConflict) {
				// Lost to a concurrent cancel; leave the payment on record.
				return false, nil
			}
			return false, err
		}
		if err := l.usage.Reset(ctx, sub.ID, sub.Entitlements); err != nil {
			return false, err
		}
		l.log.Info("subscription renewed",
			"actor", ActorScheduler, "subscription_id", sub.ID, "end_date", newEnd)
		metrics.SweepTransitions.WithLabelValues("renewed").Inc()
		return true, nil
	case payments.StatusPending:
		// Unknown outcome: leave active, the next run re-attempts after
		// reconciliation settles the pending payment.
		return false, nil
	default:
		if err := l.subs.Expire(ctx, sub.ID); err != nil && !errors.Is(err, subscriptions.ErrConflict) {
			return false, err
		}
		l.logTransition(ActorScheduler, sub.ID, subscriptions.StatusActive, subscriptions.StatusExpired, "renewal payment failed")
		l.alerts.PaymentFailed(sub.ID, sub.RecruiterID, pay.FailureReason, pay.AmountCents)
		metrics.SweepTransitions.WithLabelValues("expired").Inc()
		return false, nil
	}
}

// ReconcilePending resolves subscriptions stuck in pending after a charge
// whose outcome was unknown, from the processor's own record, then settles
// any remaining stale pending payment rows (plan-change or renewal charges
// whose transition was abandoned). Never guesses: unknown stays pending.
func (l *Lifecycle) ReconcilePending(ctx context.Context) (int, error) {
	cutoff := l.now().Add(-l.cfg.PendingRecheckAfter)
	resolved, err := l.reconcileSubscriptions(ctx, cutoff)
	if err != nil {
		return resolved, err
	}
	n, err := l.reconcileOrphanCharges(ctx, cutoff)
	return resolved + n, err
}

func (l *Lifecycle) reconcileSubscriptions(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := l.subs.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, sub := range stuck {
		pay, err := l.ledger.store.PendingBySubscription(ctx, sub.ID)
		if err != nil {
			if errors.Is(err, payments.ErrNotFound) {
				continue
			}
			return resolved, err
		}
		verdict, err := l.ledger.Verify(ctx, pay.ID)
		if err != nil || !verdict.Known {
			continue
		}
		if err := l.ledger.ResolvePayment(ctx, pay.ID, verdict.Success, verdict.TransactionID, verdict.Reason); err != nil {
			return resolved, err
		}
		if verdict.Success {
			if err := l.activate(ctx, sub.ID, ActorScheduler, sub.Entitlements); err != nil {
				return resolved, err
			}
		} else {
			if err := l.subs.Cancel(ctx, sub.ID, subscriptions.ReasonPaymentFailed); err != nil {
				return resolved, mapStoreErr(err)
			}
			l.logTransition(ActorScheduler, sub.ID, subscriptions.StatusPending, subscriptions.StatusCancelled, "payment failed on reconciliation")
		}
		metrics.SweepTransitions.WithLabelValues("reconciled").Inc()
		resolved++
	}
	return resolved, nil
}

// reconcileOrphanCharges settles pending payment rows whose subscription is
// not itself pending: a plan-change or renewal charge that timed out. A
// captured charge here paid for a transition that never happened, so the
// money goes back rather than the transition being replayed.
func (l *Lifecycle) reconcileOrphanCharges(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := l.ledger.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, pay := range stale {
		sub, err := l.get(ctx, pay.SubscriptionID)
		if err != nil {
			return resolved, err
		}
		if sub.Status == subscriptions.StatusPending {
			// Handled by the subscription pass, or still unknown there.
			continue
		}
		verdict, err := l.ledger.Verify(ctx, pay.ID)
		if err != nil || !verdict.Known {
			continue
		}
		if err := l.ledger.ResolvePayment(ctx, pay.ID, verdict.Success, verdict.TransactionID, verdict.Reason); err != nil {
			return resolved, err
		}
		if verdict.Success {
			if _, err := l.ledger.Refund(ctx, pay.ID, pay.AmountCents); err != nil {
				l.log.Error("orphan charge refund failed",
					"payment_id", pay.ID, "subscription_id", pay.SubscriptionID, "err", err)
			} else {
				l.log.Warn("orphan charge captured and refunded",
					"payment_id", pay.ID, "subscription_id", pay.SubscriptionID,
					"amount_cents", pay.AmountCents)
				l.alerts.PaymentFailed(pay.SubscriptionID, sub.RecruiterID,
					"captured charge refunded, transition abandoned", pay.AmountCents)
			}
		}
		metrics.SweepTransitions.WithLabelValues("reconciled").Inc()
		resolved++
	}
	return resolved, nil
}

// Get returns a subscription by id.
func (l *Lifecycle) Get(ctx context.Context, subscriptionID string) (*subscriptions.Subscription, error) {
	return l.get(ctx, subscriptionID)
}

// Usage returns the counter snapshot for dashboard display.
func (l *Lifecycle) Usage(ctx context.Context, subscriptionID string) (*usage.Counter, error) {
	c, err := l.usage.Get(ctx, subscriptionID)
	return c, mapStoreErr(err)
}

func (l *Lifecycle) ListSubscriptions(ctx context.Context) ([]subscriptions.Subscription, error) {
	return l.subs.List(ctx)
}

func (l *Lifecycle) activate(ctx context.Context, subscriptionID, actor string, ents plans.Entitlements) error {
	if err := l.subs.Activate(ctx, subscriptionID); err != nil {
		return mapStoreErr(err)
	}
	if err := l.usage.Init(ctx, subscriptionID, ents); err != nil {
		return mapStoreErr(err)
	}
	l.logTransition(actor, subscriptionID, subscriptions.StatusPending, subscriptions.StatusActive, "payment completed")
	return nil
}

func (l *Lifecycle) get(ctx context.Context, id string) (*subscriptions.Subscription, error) {
	sub, err := l.subs.GetByID(ctx, id)
	return sub, mapStoreErr(err)
}

func (l *Lifecycle) logTransition(actor, subscriptionID string, from, to subscriptions.Status, note string) {
	l.log.Info("subscription transition",
		"actor", actor, "subscription_id", subscriptionID,
		"from", string(from), "to", string(to), "note", note)
}

// proratedRemaining values the unused tail of the current period:
// remaining days / duration days x price, in integer cents (floor).
func proratedRemaining(sub *subscriptions.Subscription, now time.Time) int64 {
	if sub.DurationDays <= 0 || !sub.EndDate.After(now) {
		return 0
	}
	remainingDays := int64(sub.EndDate.Sub(now) / (24 * time.Hour))
	if remainingDays <= 0 {
		return 0
	}
	total := int64(sub.DurationDays)
	if remainingDays > total {
		remainingDays = total
	}
	return sub.PriceCents * remainingDays / total
}
