package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registro/internal/dedupe/models"
	"registro/internal/dedupe/normalize"
	"registro/internal/registry"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *registry.InMemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = registry.NewInMemoryStore()
}

func newIndividual(psn string) registry.Entity {
	rec := models.Record{
		Type: id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{
			FirstName: "Juan",
			LastName:  "Santos",
			PSN:       id.PSN(psn),
			BirthDate: "1985-03-15",
		},
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return registry.Entity{
		ID:         id.NewEntityID(),
		Type:       id.EntityTypeIndividual,
		Attributes: rec,
		Normalized: normalize.New().Normalize(rec),
		SourceRecords: []registry.SourceRecord{{
			SourceSystem:   "LISTAHANAN",
			SourceRecordID: "L-" + psn,
			IngestionID:    id.NewIngestionID(),
			SubmittedBy:    "importer",
			ReceivedAt:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func (s *MemoryStoreSuite) TestInsertAndGet() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	got, err := s.store.Get(s.ctx, entity.ID)

	s.Require().NoError(err)
	s.Equal(entity.ID, got.ID)
	s.Equal("1234-5678-9012", got.Normalized.PSN)
}

func (s *MemoryStoreSuite) TestInsertDuplicateIDConflicts() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	s.ErrorIs(s.store.Insert(s.ctx, entity), sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestInsertDuplicateNaturalKeyConflicts() {
	s.Require().NoError(s.store.Insert(s.ctx, newIndividual("1234-5678-9012")))

	err := s.store.Insert(s.ctx, newIndividual("1234-5678-9012"))

	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestGetUnknownIsNotFound() {
	_, err := s.store.Get(s.ctx, id.NewEntityID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestFindByNaturalKey() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	got, err := s.store.FindByNaturalKey(s.ctx, "psn:1234-5678-9012")

	s.Require().NoError(err)
	s.Equal(entity.ID, got.ID)

	_, err = s.store.FindByNaturalKey(s.ctx, "psn:0000-0000-0000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestFindBySourceRecord() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	got, err := s.store.FindBySourceRecord(s.ctx, "LISTAHANAN", "L-1234-5678-9012")

	s.Require().NoError(err)
	s.Equal(entity.ID, got.ID)
}

func (s *MemoryStoreSuite) TestUpdateRequiresFreshVersion() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	stale := entity
	stale.Version = 3
	s.ErrorIs(s.store.Update(s.ctx, stale), sentinel.ErrConflict)

	next := entity
	next.Version = 2
	s.NoError(s.store.Update(s.ctx, next))

	got, err := s.store.Get(s.ctx, entity.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Version)
}

func (s *MemoryStoreSuite) TestUpdateUnknownIsNotFound() {
	entity := newIndividual("1234-5678-9012")
	entity.Version = 2
	s.ErrorIs(s.store.Update(s.ctx, entity), sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestForEachAndCount() {
	s.Require().NoError(s.store.Insert(s.ctx, newIndividual("1111-2222-3333")))
	s.Require().NoError(s.store.Insert(s.ctx, newIndividual("4444-5555-6666")))

	var visited int
	s.Require().NoError(s.store.ForEach(s.ctx, func(registry.Entity) error {
		visited++
		return nil
	}))
	count, err := s.store.Count(s.ctx)

	s.Require().NoError(err)
	s.Equal(2, visited)
	s.Equal(2, count)
}

func (s *MemoryStoreSuite) TestNaturalKeyEmptyForSparseRecords() {
	rec := models.Record{
		Type:       id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{FirstName: "Juan", LastName: "Santos"},
	}
	entity := registry.Entity{
		ID:         id.NewEntityID(),
		Type:       id.EntityTypeIndividual,
		Attributes: rec,
		Normalized: normalize.New().Normalize(rec),
		Version:    1,
	}

	s.Empty(entity.NaturalKey())
	s.Require().NoError(s.store.Insert(s.ctx, entity))
	// A second sparse record must not collide on the empty key.
	second := entity
	second.ID = id.NewEntityID()
	s.NoError(s.store.Insert(s.ctx, second))
}
