package payments

import (
	"context"
	"fmt"
	"sync"
)

// Sandbox is an in-process processor for development and tests. Outcomes are
// deterministic: the "declined" method fails, everything else succeeds.
// Submitted charges are remembered so Verify can answer reconciliation
// lookups.
type Sandbox struct {
	mu      sync.Mutex
	seq     int
	charges map[string]ChargeResult // reference -> result
}

func NewSandbox() *Sandbox {
	return &Sandbox{charges: make(map[string]ChargeResult)}
}

// MethodDeclined makes the sandbox decline a charge.
const MethodDeclined = "declined"

func (s *Sandbox) Charge(_ context.Context, _ int64, _, method, reference string) (ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ChargeResult
	if method == MethodDeclined {
		res = ChargeResult{Success: false, Reason: "card declined"}
	} else {
		s.seq++
		res = ChargeResult{Success: true, TransactionID: fmt.Sprintf("sandbox-%06d", s.seq)}
	}
	s.charges[reference] = res
	return res, nil
}

func (s *Sandbox) Refund(_ context.Context, transactionID string, _ int64) (ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return ChargeResult{
		Success:       true,
		TransactionID: fmt.Sprintf("sandbox-refund-%06d-%s", s.seq, transactionID),
	}, nil
}

func (s *Sandbox) Verify(_ context.Context, reference string) (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.charges[reference]
	if !ok {
		return VerifyResult{Known: false}, nil
	}
	return VerifyResult{
		Known:         true,
		Success:       res.Success,
		TransactionID: res.TransactionID,
		Reason:        res.Reason,
	}, nil
}
