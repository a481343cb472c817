package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rajasatyajit/brocante/internal/models"
)

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]models.CanonicalEvent
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[string]models.CanonicalEvent),
	}
}

// ExistsByFingerprint reports whether an event with fingerprint is stored
func (s *InMemoryStore) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.events[fingerprint]
	return exists, nil
}

// Insert stores ev if its fingerprint is new
func (s *InMemoryStore) Insert(ctx context.Context, ev *models.CanonicalEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.Fingerprint]; exists {
		return false, nil
	}
	s.events[ev.Fingerprint] = *ev
	return true, nil
}

// Count returns the number of stored events
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// Events returns a snapshot of stored events ordered by start time
func (s *InMemoryStore) Events() []models.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.CanonicalEvent, 0, len(s.events))
	for _, ev := range s.events {
		result = append(result, ev)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].Fingerprint < result[j].Fingerprint
		}
		return result[i].StartAt.Before(result[j].StartAt)
	})
	return result
}

// Health always returns nil for in-memory store
func (s *InMemoryStore) Health(ctx context.Context) error {
	return nil
}
