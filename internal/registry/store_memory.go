package registry

import (
	"context"
	"sync"

	"registro/pkg/platform/sentinel"

	id "registro/pkg/domain"
)

// InMemoryStore favors clarity over performance. It backs tests and
// single-node deployments that run without Postgres.
type InMemoryStore struct {
	mu          sync.RWMutex
	entities    map[id.EntityID]Entity
	byNatural   map[string]id.EntityID
	bySourceRec map[string]id.EntityID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entities:    make(map[id.EntityID]Entity),
		byNatural:   make(map[string]id.EntityID),
		bySourceRec: make(map[string]id.EntityID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[entity.ID]; ok {
		return sentinel.ErrConflict
	}
	if key := entity.NaturalKey(); key != "" {
		if _, ok := s.byNatural[key]; ok {
			return sentinel.ErrConflict
		}
	}
	s.index(entity)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entities[entity.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != entity.Version-1 {
		return sentinel.ErrConflict
	}
	if key := current.NaturalKey(); key != "" {
		delete(s.byNatural, key)
	}
	s.index(entity)
	return nil
}

// index must be called with the write lock held.
func (s *InMemoryStore) index(entity Entity) {
	s.entities[entity.ID] = entity
	if key := entity.NaturalKey(); key != "" {
		s.byNatural[key] = entity.ID
	}
	for _, src := range entity.SourceRecords {
		if src.SourceSystem != "" && src.SourceRecordID != "" {
			s.bySourceRec[src.SourceSystem+"|"+src.SourceRecordID] = entity.ID
		}
	}
}

func (s *InMemoryStore) Get(_ context.Context, entityID id.EntityID) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity, ok := s.entities[entityID]; ok {
		return entity, nil
	}
	return Entity{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) GetMany(_ context.Context, entityIDs []id.EntityID) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		if entity, ok := s.entities[entityID]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByNaturalKey(_ context.Context, key string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entityID, ok := s.byNatural[key]; ok {
		return s.entities[entityID], nil
	}
	return Entity{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindBySourceRecord(_ context.Context, sourceSystem, sourceRecordID string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entityID, ok := s.bySourceRec[sourceSystem+"|"+sourceRecordID]; ok {
		return s.entities[entityID], nil
	}
	return Entity{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) ForEach(_ context.Context, fn func(Entity) error) error {
	s.mu.RLock()
	snapshot := make([]Entity, 0, len(s.entities))
	for _, entity := range s.entities {
		snapshot = append(snapshot, entity)
	}
	s.mu.RUnlock()

	for _, entity := range snapshot {
		if err := fn(entity); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), nil
}
