package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory ledger store used by tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Payment)}
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Now()
	s.byID[cp.ID] = cp
	return nil
}

// Put stores a payment as-is, bypassing Create's timestamping. Test helper.
func (s *MemoryStore) Put(p Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListBySubscription(_ context.Context, subscriptionID string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payment
	for _, p := range s.byID {
		if p.SubscriptionID == subscriptionID {
			out = append(out, p)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Payment, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) PendingBySubscription(_ context.Context, subscriptionID string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *Payment
	for _, p := range s.byID {
		if p.SubscriptionID == subscriptionID && p.Status == StatusPending {
			if found == nil || p.CreatedAt.After(found.CreatedAt) {
				cp := p
				found = &cp
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListPendingOlderThan(_ context.Context, cutoff time.Time) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payment
	for _, p := range s.byID {
		if p.Status == StatusPending && !p.CreatedAt.After(cutoff) {
			out = append(out, p)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, to Status, transactionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return ErrImmutable
	}
	p.Status = to
	p.TransactionID = transactionID
	p.FailureReason = reason
	s.byID[id] = p
	return nil
}

func (s *MemoryStore) MarkRefunded(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusCompleted {
		return ErrImmutable
	}
	p.Status = StatusRefunded
	s.byID[id] = p
	return nil
}

func sortByCreated(ps []Payment) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
}
