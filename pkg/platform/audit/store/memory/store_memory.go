// Package memory provides an in-memory audit store for tests and single-node
// deployments.
package memory

import (
	"context"
	"sync"

	id "registro/pkg/domain"
	"registro/pkg/platform/audit"
)

// InMemoryStore keeps events in arrival order, indexed by entity.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	byEntity map[id.EntityID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[id.EntityID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if !event.EntityID.IsNil() {
		s.byEntity[event.EntityID] = append(s.byEntity[event.EntityID], len(s.events)-1)
	}
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityID id.EntityID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byEntity[entityID]
	out := make([]audit.Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Len reports the total number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
