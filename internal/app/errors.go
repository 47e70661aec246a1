package app

import (
	"errors"
	"fmt"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrPaymentFailed = errors.New("payment failed")
	// ErrPaymentPending marks a charge whose outcome is unknown after the
	// processor timed out; the caller must wait for reconciliation.
	ErrPaymentPending = errors.New("payment pending")
)

// Denial reasons surfaced by the entitlement gate.
type Denial string

const (
	DenialNoSubscription Denial = "no_subscription"
	DenialQuotaExceeded  Denial = "quota_exceeded"
)

// DeniedError is the single rejection type consuming features receive.
type DeniedError struct {
	Reason Denial
}

func (e *DeniedError) Error() string { return fmt.Sprintf("denied: %s", e.Reason) }

func denied(reason Denial) error { return &DeniedError{Reason: reason} }

// mapStoreErr converts domain sentinels to the app-level taxonomy so callers
// match a single error set regardless of which store produced it.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, plans.ErrNotFound),
		errors.Is(err, subscriptions.ErrNotFound),
		errors.Is(err, usage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, subscriptions.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
