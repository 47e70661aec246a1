package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore mirrors Repo's semantics in memory, including the conditional
// transitions. Used by unit tests and local runs without Postgres.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Subscription)}
}

// Put stores a subscription as-is, bypassing transition rules. Test helper.
func (s *MemoryStore) Put(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sub.ID] = sub
}

func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.RecruiterID == sub.RecruiterID &&
			existing.Status == StatusActive && sub.Status == StatusActive {
			return ErrConflict
		}
	}
	cp := *sub
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.byID[cp.ID] = cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetActiveByRecruiter(_ context.Context, recruiterID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.byID {
		if sub.RecruiterID == recruiterID && sub.Status == StatusActive {
			cp := sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, 0, len(s.byID))
	for _, sub := range s.byID {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Activate(_ context.Context, id string) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusPending {
			return false
		}
		sub.Status = StatusActive
		sub.PaymentStatus = PaymentPaid
		return true
	})
}

func (s *MemoryStore) Cancel(_ context.Context, id, reason string) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusPending && sub.Status != StatusActive {
			return false
		}
		sub.Status = StatusCancelled
		sub.AutoRenewal = false
		sub.CancelReason = reason
		return true
	})
}

func (s *MemoryStore) Expire(_ context.Context, id string) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusActive {
			return false
		}
		sub.Status = StatusExpired
		return true
	})
}

func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscription
	for id, sub := range s.byID {
		if sub.Status == StatusActive && !sub.AutoRenewal && !sub.EndDate.After(now) {
			sub.Status = StatusExpired
			sub.UpdatedAt = time.Now()
			s.byID[id] = sub
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRenewalDue(_ context.Context, now time.Time) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, sub := range s.byID {
		if sub.Status == StatusActive && sub.AutoRenewal && !sub.EndDate.After(now) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (s *MemoryStore) ListPendingOlderThan(_ context.Context, cutoff time.Time) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, sub := range s.byID {
		if sub.Status == StatusPending && !sub.CreatedAt.After(cutoff) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ExtendPeriod(_ context.Context, id string, newEnd time.Time) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusActive {
			return false
		}
		sub.EndDate = newEnd
		sub.PaymentStatus = PaymentPaid
		return true
	})
}

func (s *MemoryStore) ChangePlan(_ context.Context, id string, next *Subscription) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusActive {
			return false
		}
		sub.PlanID = next.PlanID
		sub.EndDate = next.EndDate
		sub.PriceCents = next.PriceCents
		sub.DurationDays = next.DurationDays
		sub.Entitlements = next.Entitlements
		sub.PaymentStatus = PaymentPaid
		return true
	})
}

func (s *MemoryStore) Reactivate(_ context.Context, id string, newEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if sub.Status != StatusExpired && sub.Status != StatusCancelled {
		return ErrConflict
	}
	// Same guarantee as the partial unique index: one active per recruiter.
	for _, other := range s.byID {
		if other.ID != id && other.RecruiterID == sub.RecruiterID && other.Status == StatusActive {
			return ErrConflict
		}
	}
	sub.Status = StatusActive
	sub.EndDate = newEnd
	sub.CancelReason = ""
	sub.UpdatedAt = time.Now()
	s.byID[id] = sub
	return nil
}

func (s *MemoryStore) OverrideStatus(_ context.Context, id string, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = to
	sub.UpdatedAt = time.Now()
	s.byID[id] = sub
	return nil
}

func (s *MemoryStore) SetAutoRenewal(_ context.Context, id string, autoRenew bool) error {
	return s.transition(id, func(sub *Subscription) bool {
		if sub.Status != StatusPending && sub.Status != StatusActive {
			return false
		}
		sub.AutoRenewal = autoRenew
		return true
	})
}

func (s *MemoryStore) SetPaymentStatus(_ context.Context, id string, ps PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	sub.PaymentStatus = ps
	sub.UpdatedAt = time.Now()
	s.byID[id] = sub
	return nil
}

func (s *MemoryStore) CountPendingByPlan(_ context.Context, planID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.byID {
		if sub.PlanID == planID && sub.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) transition(id string, apply func(*Subscription) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !apply(&sub) {
		return ErrConflict
	}
	sub.UpdatedAt = time.Now()
	s.byID[id] = sub
	return nil
}
