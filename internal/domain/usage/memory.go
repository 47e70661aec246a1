package usage

import (
	"context"
	"sync"
	"time"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

// MemoryStore is a mutex-guarded in-memory meter. The lock is held across the
// check and the increment, giving the same atomicity as the SQL conditional
// update.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*Counter)}
}

func (s *MemoryStore) Init(_ context.Context, subscriptionID string, ents plans.Entitlements) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[subscriptionID]; ok {
		return nil
	}
	s.counters[subscriptionID] = &Counter{
		SubscriptionID: subscriptionID,
		Limits:         ents,
		UpdatedAt:      time.Now(),
	}
	return nil
}

func (s *MemoryStore) TryConsume(_ context.Context, subscriptionID string, kind Kind, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[subscriptionID]
	if !ok {
		return 0, ErrNotFound
	}
	limit := c.Limit(kind)
	if limit != plans.Unbounded && c.Used(kind)+amount > limit {
		return 0, ErrQuotaExceeded
	}
	switch kind {
	case KindJobPosting:
		c.JobPostingsUsed += amount
	case KindFeaturedJob:
		c.FeaturedJobsUsed += amount
	case KindCVDownload:
		c.CVDownloadsUsed += amount
	case KindCandidateSearch:
		c.CandidateSearchesUsed += amount
	}
	c.UpdatedAt = time.Now()
	return c.Remaining(kind), nil
}

func (s *MemoryStore) Reset(_ context.Context, subscriptionID string, ents plans.Entitlements) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[subscriptionID]
	if !ok {
		return ErrNotFound
	}
	c.JobPostingsUsed = 0
	c.FeaturedJobsUsed = 0
	c.CVDownloadsUsed = 0
	c.CandidateSearchesUsed = 0
	c.Limits = ents
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subscriptionID string) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[subscriptionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}
