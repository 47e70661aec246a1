package plans

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps plans in memory. It backs unit tests and local runs
// without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Plan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, byID: make(map[int64]Plan)}
}

func (s *MemoryStore) ListActive(_ context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Plan
	for _, p := range s.byID {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p *Plan) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cp := *p
	if cp.ID == 0 {
		cp.ID = s.nextID
		s.nextID++
		cp.CreatedAt = now
	} else {
		prev, ok := s.byID[cp.ID]
		if !ok {
			return nil, ErrNotFound
		}
		cp.CreatedAt = prev.CreatedAt
	}
	cp.UpdatedAt = now
	s.byID[cp.ID] = cp
	return &cp, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = false
	p.UpdatedAt = time.Now()
	s.byID[id] = p
	return nil
}
