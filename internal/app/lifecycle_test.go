package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
	processor "github.com/talentgate/subscription-engine/internal/infra/payments"
)

type chargeCall struct {
	Amount    int64
	Method    string
	Reference string
}

// stubProc is a scriptable processor: it can succeed, decline everything, or
// simulate an outage where the call errors but the processor keeps a record
// for later Verify calls.
type stubProc struct {
	mu         sync.Mutex
	chargeErr  error
	declineAll bool
	reason     string
	verdicts   map[string]processor.VerifyResult
	charges    []chargeCall
	seq        int
}

func newStubProc() *stubProc {
	return &stubProc{verdicts: make(map[string]processor.VerifyResult)}
}

func (p *stubProc) Charge(_ context.Context, amount int64, _, method, reference string) (processor.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, chargeCall{Amount: amount, Method: method, Reference: reference})
	if p.chargeErr != nil {
		return processor.ChargeResult{}, p.chargeErr
	}
	if p.declineAll {
		return processor.ChargeResult{Success: false, Reason: p.reason}, nil
	}
	p.seq++
	return processor.ChargeResult{Success: true, TransactionID: fmt.Sprintf("tx-%d", p.seq)}, nil
}

func (p *stubProc) Refund(_ context.Context, transactionID string, _ int64) (processor.ChargeResult, error) {
	return processor.ChargeResult{Success: true, TransactionID: "refund-" + transactionID}, nil
}

func (p *stubProc) Verify(_ context.Context, reference string) (processor.VerifyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.verdicts[reference]
	if !ok {
		return processor.VerifyResult{Known: false}, nil
	}
	return v, nil
}

func (p *stubProc) lastCharge() chargeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charges[len(p.charges)-1]
}

type env struct {
	planStore *plans.MemoryStore
	subs      *subscriptions.MemoryStore
	meter     *usage.MemoryStore
	pays      *payments.MemoryStore
	proc      *stubProc
	ledger    *Ledger
	lc        *Lifecycle
	now       time.Time

	basic   *plans.Plan
	premium *plans.Plan
}

func newEnv(t *testing.T, cfg LifecycleConfig) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		planStore: plans.NewMemoryStore(),
		subs:      subscriptions.NewMemoryStore(),
		meter:     usage.NewMemoryStore(),
		pays:      payments.NewMemoryStore(),
		proc:      newStubProc(),
		now:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	e.ledger = NewLedger(e.pays, e.proc, "USD", time.Second, log)
	e.lc = NewLifecycle(e.planStore, e.subs, e.meter, e.ledger, nil, cfg, log)
	e.lc.now = func() time.Time { return e.now }

	var err error
	e.basic, err = e.planStore.Upsert(context.Background(), &plans.Plan{
		Name: "Basic", PriceCents: 100, DurationDays: 30, IsActive: true,
		Entitlements: plans.Entitlements{
			JobPostsLimit: 3, FeaturedJobs: 1, CVDownloads: 5, CandidateSearches: 10,
		},
	})
	require.NoError(t, err)
	e.premium, err = e.planStore.Upsert(context.Background(), &plans.Plan{
		Name: "Premium", PriceCents: 300, DurationDays: 30, IsActive: true,
		Entitlements: plans.Entitlements{
			JobPostsLimit: plans.Unbounded, FeaturedJobs: 10,
			CVDownloads: plans.Unbounded, CandidateSearches: plans.Unbounded,
			AdvancedAnalytics: true, PrioritySupport: true,
		},
	})
	require.NoError(t, err)
	return e
}

func (e *env) subscribeActive(t *testing.T, recruiter string, plan *plans.Plan) *subscriptions.Subscription {
	t.Helper()
	sub, err := e.lc.Subscribe(context.Background(), recruiter, plan.ID, "card")
	require.NoError(t, err)
	require.Equal(t, subscriptions.StatusActive, sub.Status)
	return sub
}

func TestSubscribeActivates(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()

	sub, err := e.lc.Subscribe(ctx, "rec-1", e.basic.ID, "card")
	require.NoError(t, err)

	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.Equal(t, subscriptions.PaymentPaid, sub.PaymentStatus)
	assert.True(t, sub.AutoRenewal)
	assert.Equal(t, e.now, sub.StartDate)
	assert.Equal(t, e.now.AddDate(0, 0, 30), sub.EndDate)
	assert.Equal(t, int64(100), sub.PriceCents)
	assert.Equal(t, e.basic.Entitlements, sub.Entitlements)

	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Limits.JobPostsLimit)
	assert.Equal(t, int64(0), c.JobPostingsUsed)

	pays, err := e.pays.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, payments.StatusCompleted, pays[0].Status)
	assert.Equal(t, int64(100), pays[0].AmountCents)
}

func TestSubscribeUnknownPlan(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	_, err := e.lc.Subscribe(context.Background(), "rec-1", 999, "card")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscribeInactivePlan(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	require.NoError(t, e.planStore.Deactivate(ctx, e.basic.ID))

	_, err := e.lc.Subscribe(ctx, "rec-1", e.basic.ID, "card")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubscribeSecondActiveRejected(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	e.subscribeActive(t, "rec-1", e.basic)

	_, err := e.lc.Subscribe(context.Background(), "rec-1", e.premium.ID, "card")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSubscribePaymentDeclined(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	e.proc.declineAll = true
	e.proc.reason = "card declined"
	ctx := context.Background()

	sub, err := e.lc.Subscribe(ctx, "rec-1", e.basic.ID, "card")
	require.NoError(t, err)

	assert.Equal(t, subscriptions.StatusCancelled, sub.Status)
	assert.Equal(t, subscriptions.ReasonPaymentFailed, sub.CancelReason)
	assert.False(t, sub.AutoRenewal)

	// Never activated, so no counters were provisioned.
	_, err = e.meter.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, usage.ErrNotFound)

	pays, err := e.pays.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, payments.StatusFailed, pays[0].Status)
}

func TestSubscribeOutageStaysPending(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	e.proc.chargeErr = errors.New("gateway timeout")
	ctx := context.Background()

	sub, err := e.lc.Subscribe(ctx, "rec-1", e.basic.ID, "card")
	require.NoError(t, err)

	assert.Equal(t, subscriptions.StatusPending, sub.Status)
	assert.Equal(t, subscriptions.PaymentUnpaid, sub.PaymentStatus)

	pay, err := e.pays.PendingBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, pay.Status)
}

func (e *env) parkPending(t *testing.T, recruiter string) (*subscriptions.Subscription, string) {
	t.Helper()
	ctx := context.Background()
	e.proc.chargeErr = errors.New("gateway timeout")
	sub, err := e.lc.Subscribe(ctx, recruiter, e.basic.ID, "card")
	require.NoError(t, err)
	require.Equal(t, subscriptions.StatusPending, sub.Status)
	e.proc.chargeErr = nil

	// Age the record past the recheck window.
	aged := *sub
	aged.CreatedAt = e.now.Add(-time.Hour)
	e.subs.Put(aged)

	pay, err := e.pays.PendingBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	return sub, pay.ID
}

func TestReconcilePendingActivates(t *testing.T) {
	e := newEnv(t, LifecycleConfig{PendingRecheckAfter: 15 * time.Minute})
	ctx := context.Background()
	sub, payID := e.parkPending(t, "rec-1")
	e.proc.verdicts[payID] = processor.VerifyResult{Known: true, Success: true, TransactionID: "tx-late"}

	n, err := e.lc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, got.Status)
	assert.Equal(t, subscriptions.PaymentPaid, got.PaymentStatus)

	pay, err := e.pays.GetByID(ctx, payID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, pay.Status)
	assert.Equal(t, "tx-late", pay.TransactionID)

	_, err = e.meter.Get(ctx, sub.ID)
	assert.NoError(t, err, "activation provisions counters")
}

func TestReconcilePendingCancelsOnFailure(t *testing.T) {
	e := newEnv(t, LifecycleConfig{PendingRecheckAfter: 15 * time.Minute})
	ctx := context.Background()
	sub, payID := e.parkPending(t, "rec-1")
	e.proc.verdicts[payID] = processor.VerifyResult{Known: true, Success: false, Reason: "card declined"}

	n, err := e.lc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCancelled, got.Status)
	assert.Equal(t, subscriptions.ReasonPaymentFailed, got.CancelReason)
}

func TestReconcilePendingUnknownStaysPending(t *testing.T) {
	e := newEnv(t, LifecycleConfig{PendingRecheckAfter: 15 * time.Minute})
	ctx := context.Background()
	sub, _ := e.parkPending(t, "rec-1")

	n, err := e.lc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusPending, got.Status)
}

func TestReconcileRefundsCapturedChangePlanCharge(t *testing.T) {
	e := newEnv(t, LifecycleConfig{PendingRecheckAfter: 15 * time.Minute})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	e.proc.chargeErr = errors.New("gateway timeout")
	e.now = e.now.AddDate(0, 0, 10)
	_, err := e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	require.ErrorIs(t, err, ErrPaymentPending)
	e.proc.chargeErr = nil

	pay, err := e.pays.PendingBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	aged := *pay
	aged.CreatedAt = e.now.Add(-time.Hour)
	e.pays.Put(aged)

	// The processor did capture the delta.
	e.proc.verdicts[pay.ID] = processor.VerifyResult{Known: true, Success: true, TransactionID: "tx-late"}

	n, err := e.lc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The abandoned charge is settled and returned, not left in limbo.
	got, err := e.pays.GetByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, got.Status)

	list, err := e.pays.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	var reversal *payments.Payment
	for i := range list {
		if list[i].ReversalOf == pay.ID {
			reversal = &list[i]
		}
	}
	require.NotNil(t, reversal)
	assert.Equal(t, pay.AmountCents, reversal.AmountCents)

	// The subscription never moved off its old plan.
	after, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, e.basic.ID, after.PlanID)
	assert.Equal(t, subscriptions.StatusActive, after.Status)
}

func TestReconcileResolvesFailedChangePlanCharge(t *testing.T) {
	e := newEnv(t, LifecycleConfig{PendingRecheckAfter: 15 * time.Minute})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	e.proc.chargeErr = errors.New("gateway timeout")
	e.now = e.now.AddDate(0, 0, 10)
	_, err := e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	require.ErrorIs(t, err, ErrPaymentPending)
	e.proc.chargeErr = nil

	pay, err := e.pays.PendingBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	aged := *pay
	aged.CreatedAt = e.now.Add(-time.Hour)
	e.pays.Put(aged)
	e.proc.verdicts[pay.ID] = processor.VerifyResult{Known: true, Success: false, Reason: "card declined"}

	n, err := e.lc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.pays.GetByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusFailed, got.Status)

	after, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, after.Status)
	assert.Equal(t, e.basic.ID, after.PlanID)
}

func TestChangePlanUpgradeProrates(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	// Consume some quota, then upgrade 10 days in: 20 of 30 days remain, so
	// the unused value is 100*20/30 = 66 and the charge is 300-66 = 234.
	_, err := e.meter.TryConsume(ctx, sub.ID, usage.KindJobPosting, 2)
	require.NoError(t, err)
	e.now = e.now.AddDate(0, 0, 10)

	got, err := e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	require.NoError(t, err)

	assert.Equal(t, int64(234), e.proc.lastCharge().Amount)
	assert.Equal(t, e.premium.ID, got.PlanID)
	assert.Equal(t, int64(300), got.PriceCents)
	assert.Equal(t, e.now.AddDate(0, 0, 30), got.EndDate, "cycle restarts at change time")
	assert.Equal(t, e.premium.Entitlements, got.Entitlements)

	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.JobPostingsUsed, "counters reset on plan change")
	assert.Equal(t, plans.Unbounded, c.Limits.JobPostsLimit)
}

func TestChangePlanDeclinedLeavesSubscriptionUntouched(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.meter.TryConsume(ctx, sub.ID, usage.KindJobPosting, 1)
	require.NoError(t, err)
	before, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)

	e.proc.declineAll = true
	e.proc.reason = "insufficient funds"
	e.now = e.now.AddDate(0, 0, 10)

	_, err = e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	require.ErrorIs(t, err, ErrPaymentFailed)

	after, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PlanID, after.PlanID)
	assert.Equal(t, before.EndDate, after.EndDate)

	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.JobPostingsUsed)
}

func TestChangePlanOutageReturnsPending(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	e.proc.chargeErr = errors.New("gateway timeout")
	e.now = e.now.AddDate(0, 0, 10)

	_, err := e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	require.ErrorIs(t, err, ErrPaymentPending)

	after, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, e.basic.ID, after.PlanID)
	assert.Equal(t, subscriptions.StatusActive, after.Status)
}

func TestChangePlanDowngradeRecordsCredit(t *testing.T) {
	e := newEnv(t, LifecycleConfig{DowngradeCredit: true})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.premium)

	// 20 of 30 days remain on a 300-cent plan: unused value 200, new plan
	// costs 100, so 100 cents come back as a ledger credit.
	e.now = e.now.AddDate(0, 0, 10)

	got, err := e.lc.ChangePlan(ctx, sub.ID, e.basic.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, e.basic.ID, got.PlanID)

	pays, err := e.pays.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	var credit *payments.Payment
	for i := range pays {
		if pays[i].Method == payments.MethodCredit {
			credit = &pays[i]
		}
	}
	require.NotNil(t, credit, "downgrade delta must be recorded as a credit row")
	assert.Equal(t, int64(100), credit.AmountCents)
	assert.Equal(t, payments.StatusCompleted, credit.Status)
}

func TestChangePlanRequiresActive(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.Cancel(ctx, "rec-1", sub.ID, "user request")
	require.NoError(t, err)

	_, err = e.lc.ChangePlan(ctx, sub.ID, e.premium.ID, "card")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestChangePlanSamePlanRejected(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.ChangePlan(context.Background(), sub.ID, e.basic.ID, "card")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancelActive(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	got, err := e.lc.Cancel(ctx, "rec-1", sub.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCancelled, got.Status)
	assert.Equal(t, "too expensive", got.CancelReason)
	assert.False(t, got.AutoRenewal)
}

func TestCancelFromTerminalStateRejected(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.Cancel(ctx, "rec-1", sub.ID, "first")
	require.NoError(t, err)

	_, err = e.lc.Cancel(ctx, "rec-1", sub.ID, "second")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSweepExpirations(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.SetAutoRenewal(ctx, "rec-1", sub.ID, false)
	require.NoError(t, err)
	_, err = e.meter.TryConsume(ctx, sub.ID, usage.KindJobPosting, 2)
	require.NoError(t, err)

	e.now = e.now.AddDate(0, 0, 31)

	n, err := e.lc.SweepExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusExpired, got.Status)

	// Counters are frozen for history, not deleted.
	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.JobPostingsUsed)

	// Idempotent: nothing left to expire.
	n, err = e.lc.SweepExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepLeavesCurrentSubscriptionsAlone(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.SetAutoRenewal(ctx, "rec-1", sub.ID, false)
	require.NoError(t, err)

	n, err := e.lc.SweepExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessRenewalsExtends(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.meter.TryConsume(ctx, sub.ID, usage.KindJobPosting, 3)
	require.NoError(t, err)

	oldEnd := sub.EndDate
	e.now = e.now.AddDate(0, 0, 30)

	renewed, expired, err := e.lc.ProcessRenewals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
	assert.Equal(t, 0, expired)
	assert.Equal(t, "auto_renewal", e.proc.lastCharge().Method)
	assert.Equal(t, int64(100), e.proc.lastCharge().Amount)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, got.Status)
	assert.Equal(t, oldEnd.AddDate(0, 0, 30), got.EndDate)

	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.JobPostingsUsed, "renewal resets the cycle counters")
}

func TestProcessRenewalsExpiresOnDecline(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	e.proc.declineAll = true
	e.proc.reason = "expired card"
	e.now = e.now.AddDate(0, 0, 30)

	renewed, expired, err := e.lc.ProcessRenewals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, renewed)
	assert.Equal(t, 1, expired)

	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusExpired, got.Status)
}

func TestReactivateExpiredReArmsPeriod(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.SetAutoRenewal(ctx, "rec-1", sub.ID, false)
	require.NoError(t, err)
	e.now = e.now.AddDate(0, 0, 40)
	_, err = e.lc.SweepExpirations(ctx)
	require.NoError(t, err)

	got, err := e.lc.Reactivate(ctx, "admin-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, got.Status)
	assert.Equal(t, e.now.AddDate(0, 0, 30), got.EndDate)
}

func TestReactivateCancelledPendingProvisionsCounters(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	e.proc.declineAll = true
	sub, err := e.lc.Subscribe(ctx, "rec-1", e.basic.ID, "card")
	require.NoError(t, err)
	require.Equal(t, subscriptions.StatusCancelled, sub.Status)
	e.proc.declineAll = false

	got, err := e.lc.Reactivate(ctx, "admin-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, got.Status)

	c, err := e.meter.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.JobPostingsUsed)
	assert.Equal(t, e.basic.Entitlements, c.Limits)
}

func TestReactivateBlockedByNewerActive(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	old := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.Cancel(ctx, "rec-1", old.ID, "switching plans")
	require.NoError(t, err)
	current := e.subscribeActive(t, "rec-1", e.premium)

	_, err = e.lc.Reactivate(ctx, "admin-1", old.ID)
	require.ErrorIs(t, err, ErrConflict)

	// The old record stays terminal and the recruiter still resolves to the
	// one current subscription.
	got, err := e.lc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCancelled, got.Status)

	active, err := e.subs.GetActiveByRecruiter(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, current.ID, active.ID)
}

func TestMemoryReactivateEnforcesOneActive(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	old := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.Cancel(ctx, "rec-1", old.ID, "done")
	require.NoError(t, err)
	e.subscribeActive(t, "rec-1", e.premium)

	// Even bypassing the service layer, the store refuses the revival.
	err = e.subs.Reactivate(ctx, old.ID, e.now.AddDate(0, 0, 30))
	assert.ErrorIs(t, err, subscriptions.ErrConflict)
}

func TestReactivateActiveRejected(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.Reactivate(context.Background(), "admin-1", sub.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOverrideStatusValidates(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	sub := e.subscribeActive(t, "rec-1", e.basic)
	_, err := e.lc.OverrideStatus(context.Background(), "admin-1", sub.ID, "frozen")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkRefunded(t *testing.T) {
	e := newEnv(t, LifecycleConfig{})
	ctx := context.Background()
	sub := e.subscribeActive(t, "rec-1", e.basic)

	require.NoError(t, e.lc.MarkRefunded(ctx, sub.ID, false))
	got, err := e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.PaymentPartial, got.PaymentStatus)

	require.NoError(t, e.lc.MarkRefunded(ctx, sub.ID, true))
	got, err = e.lc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.PaymentRefunded, got.PaymentStatus)
}

func TestProratedRemaining(t *testing.T) {
	now := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	sub := &subscriptions.Subscription{
		PriceCents:   100,
		DurationDays: 30,
		EndDate:      time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, int64(66), proratedRemaining(sub, now), "integer cents, floored")

	sub.EndDate = now
	assert.Equal(t, int64(0), proratedRemaining(sub, now))

	sub.EndDate = now.AddDate(0, 0, -5)
	assert.Equal(t, int64(0), proratedRemaining(sub, now))
}
