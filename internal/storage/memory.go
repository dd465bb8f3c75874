package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/ivt-audit/internal/models"
)

// InMemoryEventStore keeps events in process memory. It backs tests and the
// memory backend used for one-off CSV audits.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []models.Event
}

// NewInMemoryEventStore creates a new in-memory event store seeded with events.
func NewInMemoryEventStore(events ...models.Event) *InMemoryEventStore {
	s := &InMemoryEventStore{}
	if len(events) > 0 {
		s.events = append([]models.Event(nil), events...)
	}
	return s
}

func (s *InMemoryEventStore) ScanEvents(ctx context.Context) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Event, len(s.events))
	copy(result, s.events)
	return result, nil
}

func (s *InMemoryEventStore) BulkInsert(ctx context.Context, events []models.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Swap in a fresh slice so earlier ScanEvents results stay untouched.
	next := make([]models.Event, 0, len(s.events)+len(events))
	next = append(next, s.events...)
	s.events = append(next, events...)
	return int64(len(events)), nil
}

func (s *InMemoryEventStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}
