package batch

import (
	"context"
	"sync"

	"registro/internal/ingest/models"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	ingestions map[id.IngestionID]models.Ingestion
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ingestions: make(map[id.IngestionID]models.Ingestion)}
}

func (s *InMemoryStore) Create(_ context.Context, ingestion models.Ingestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ingestions[ingestion.ID]; ok {
		return sentinel.ErrConflict
	}
	s.ingestions[ingestion.ID] = ingestion
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, ingestion models.Ingestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.ingestions[ingestion.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Closed() {
		return sentinel.ErrInvalidState
	}
	s.ingestions[ingestion.ID] = ingestion
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, ingestionID id.IngestionID) (models.Ingestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ingestion, ok := s.ingestions[ingestionID]; ok {
		return ingestion, nil
	}
	return models.Ingestion{}, sentinel.ErrNotFound
}
