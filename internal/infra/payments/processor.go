// Package payments holds the external payment processor contract and its
// implementations. The processor moves the actual funds; the billing ledger
// only records outcomes.
package payments

import "context"

// ChargeResult is the processor's verdict on a charge or refund attempt. A
// declined charge is a result, not an error; errors are reserved for the call
// itself failing (network, timeout).
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// VerifyResult reports what the processor knows about a previously submitted
// charge, keyed by our reference. Known=false means the processor has no
// record yet and the outcome must not be guessed.
type VerifyResult struct {
	Known         bool   `json:"known"`
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Processor is the external collaborator contract. Latency is not guaranteed;
// callers bound every call with a context deadline.
type Processor interface {
	Charge(ctx context.Context, amountCents int64, currency, method, reference string) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) (ChargeResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
}
