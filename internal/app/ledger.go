package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/infra/metrics"
	processor "github.com/talentgate/subscription-engine/internal/infra/payments"
)

// Ledger records billing events tied to subscription transitions and delegates
// funds movement to the external processor. A declined charge comes back as a
// failed Payment, not an error; a charge is never retried here, retry is the
// caller's deliberate decision.
type Ledger struct {
	store    PaymentStore
	proc     processor.Processor
	currency string
	timeout  time.Duration
	log      *slog.Logger
}

func NewLedger(store PaymentStore, proc processor.Processor, currency string, timeout time.Duration, log *slog.Logger) *Ledger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Ledger{store: store, proc: proc, currency: currency, timeout: timeout, log: log}
}

// Charge submits one charge attempt. The returned payment carries the
// outcome: completed, failed, or still pending when the processor call timed
// out and the result must not be guessed.
func (l *Ledger) Charge(ctx context.Context, subscriptionID string, amountCents int64, method string) (*payments.Payment, error) {
	p := &payments.Payment{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		AmountCents:    amountCents,
		Currency:       l.currency,
		Method:         method,
		Status:         payments.StatusPending,
	}
	if err := l.store.Create(ctx, p); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.proc.Charge(callCtx, amountCents, l.currency, method, p.ID)
	if err != nil {
		// Outcome unknown; the row stays pending until reconciliation
		// resolves it from the processor's own record.
		l.log.Warn("charge outcome unknown",
			"payment_id", p.ID, "subscription_id", subscriptionID, "err", err)
		metrics.Payments.WithLabelValues(string(payments.StatusPending)).Inc()
		return l.store.GetByID(ctx, p.ID)
	}

	status := payments.StatusFailed
	if res.Success {
		status = payments.StatusCompleted
	}
	if err := l.store.Resolve(ctx, p.ID, status, res.TransactionID, res.Reason); err != nil {
		return nil, err
	}
	metrics.Payments.WithLabelValues(string(status)).Inc()
	l.log.Info("charge resolved",
		"payment_id", p.ID, "subscription_id", subscriptionID,
		"status", status, "amount_cents", amountCents)
	return l.store.GetByID(ctx, p.ID)
}

// RecordCredit writes a ledger-internal credit entry (downgrade delta). No
// processor call is made.
func (l *Ledger) RecordCredit(ctx context.Context, subscriptionID string, amountCents int64) (*payments.Payment, error) {
	p := &payments.Payment{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		AmountCents:    amountCents,
		Currency:       l.currency,
		Method:         payments.MethodCredit,
		Status:         payments.StatusCompleted,
	}
	if err := l.store.Create(ctx, p); err != nil {
		return nil, err
	}
	l.log.Info("credit recorded",
		"payment_id", p.ID, "subscription_id", subscriptionID, "amount_cents", amountCents)
	return p, nil
}

// Refund reverses a completed charge, fully or partially. History is never
// mutated in place: the refund is a new linked row, and the original is
// flipped to refunded only when reversed in full.
func (l *Ledger) Refund(ctx context.Context, paymentID string, amountCents int64) (*payments.Payment, error) {
	orig, err := l.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, mapPaymentErr(err)
	}
	if orig.Method == payments.MethodCredit {
		return nil, fmt.Errorf("%w: payment %s is a ledger-internal credit, no processor charge backs it",
			ErrConflict, paymentID)
	}
	if orig.Status != payments.StatusCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s, only completed charges can be refunded",
			ErrConflict, paymentID, orig.Status)
	}
	if amountCents <= 0 || amountCents > orig.AmountCents {
		return nil, validationf("refund amount must be in (0, %d]", orig.AmountCents)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.proc.Refund(callCtx, orig.TransactionID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("refund call failed: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, res.Reason)
	}

	rev := &payments.Payment{
		ID:             uuid.NewString(),
		SubscriptionID: orig.SubscriptionID,
		AmountCents:    amountCents,
		Currency:       orig.Currency,
		Method:         orig.Method,
		Status:         payments.StatusRefunded,
		TransactionID:  res.TransactionID,
		ReversalOf:     orig.ID,
	}
	if err := l.store.Create(ctx, rev); err != nil {
		return nil, err
	}
	if amountCents == orig.AmountCents {
		if err := l.store.MarkRefunded(ctx, orig.ID); err != nil {
			return nil, err
		}
	}
	metrics.Payments.WithLabelValues(string(payments.StatusRefunded)).Inc()
	l.log.Info("payment refunded",
		"payment_id", orig.ID, "reversal_id", rev.ID, "amount_cents", amountCents)
	return rev, nil
}

// Verify asks the processor for its record of a charge, for reconciliation.
func (l *Ledger) Verify(ctx context.Context, reference string) (processor.VerifyResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.proc.Verify(callCtx, reference)
}

// ResolvePayment finalizes a pending row after reconciliation.
func (l *Ledger) ResolvePayment(ctx context.Context, paymentID string, success bool, transactionID, reason string) error {
	status := payments.StatusFailed
	if success {
		status = payments.StatusCompleted
	}
	if err := l.store.Resolve(ctx, paymentID, status, transactionID, reason); err != nil {
		return err
	}
	metrics.Payments.WithLabelValues(string(status)).Inc()
	return nil
}

func (l *Ledger) PaymentsBySubscription(ctx context.Context, subscriptionID string) ([]payments.Payment, error) {
	return l.store.ListBySubscription(ctx, subscriptionID)
}

func (l *Ledger) AllPayments(ctx context.Context) ([]payments.Payment, error) {
	return l.store.List(ctx)
}

func mapPaymentErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, payments.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
