package subscriptions

import (
	"time"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentRefunded PaymentStatus = "refunded"
)

// Cancellation reasons recorded on the subscription row.
const (
	ReasonPaymentFailed = "payment_failed"
)

// Subscription belongs to exactly one recruiter. PriceCents, DurationDays and
// Entitlements are value-copies taken from the plan at subscribe time; plan
// edits after that point never reach this record.
type Subscription struct {
	ID            string             `json:"id"`
	RecruiterID   string             `json:"recruiter_id"`
	PlanID        int64              `json:"plan_id"`
	Status        Status             `json:"status"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	AutoRenewal   bool               `json:"auto_renewal"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	PriceCents    int64              `json:"price_cents"`
	DurationDays  int                `json:"duration_days"`
	Entitlements  plans.Entitlements `json:"entitlements"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
