package payments

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// MethodCredit marks ledger-internal credit entries written on downgrade;
// no processor call backs them.
const MethodCredit = "credit"

// Payment records one billing event. Completed and refunded rows are never
// mutated; a refund writes a linked reversal row (ReversalOf) instead.
type Payment struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	Method         string    `json:"method"`
	Status         Status    `json:"status"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	ReversalOf     string    `json:"reversal_of,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
