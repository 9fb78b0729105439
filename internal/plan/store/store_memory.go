package store

import (
	"context"
	"sort"
	"sync"

	"planhub/internal/plan/models"
	"planhub/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for unit tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*models.Plan)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return plan.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ObjectID] = plan.Clone()
	return nil
}

func (s *MemoryStore) PutIf(ctx context.Context, plan *models.Plan, expectedTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.plans[plan.ObjectID]
	if expectedTag == "" {
		if ok {
			return sentinel.ErrConflict
		}
	} else {
		if !ok {
			return sentinel.ErrNotFound
		}
		if current.VersionTag != expectedTag {
			return sentinel.ErrTagMismatch
		}
	}
	s.plans[plan.ObjectID] = plan.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.plans, id)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.plans[id]
	return ok, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plans := make([]*models.Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, plan.Clone())
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ObjectID < plans[j].ObjectID })
	return plans, nil
}
