package profile

import (
	"context"
	"sync"

	"github.com/udtms/txmonitor/internal/domain"
)

// Store persists customer profiles. Get returns (nil, nil) for customers that
// have no profile yet.
type Store interface {
	Get(ctx context.Context, customerID string) (*domain.CustomerProfile, error)
	Put(ctx context.Context, p *domain.CustomerProfile) error
}

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.CustomerProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*domain.CustomerProfile)}
}

func (s *MemoryStore) Get(_ context.Context, customerID string) (*domain.CustomerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[customerID].Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, p *domain.CustomerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.CustomerID] = p.Clone()
	return nil
}
