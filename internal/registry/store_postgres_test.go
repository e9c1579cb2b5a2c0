//go:build integration

package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registro/internal/registry"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
	"registro/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.PostgresContainer
	store     *registry.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewPostgresContainer(s.T(), registry.Schema)
	s.store = registry.NewPostgresStore(s.container.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.container.TruncateTables(s.ctx,
		"registry_source_records", "registry_entities"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	got, err := s.store.Get(s.ctx, entity.ID)

	s.Require().NoError(err)
	s.Equal(entity.ID, got.ID)
	s.Equal(entity.Type, got.Type)
	s.Equal("1234-5678-9012", got.Normalized.PSN)
	s.Require().Len(got.SourceRecords, 1)
	s.Equal("LISTAHANAN", got.SourceRecords[0].SourceSystem)
	s.True(got.CreatedAt.Equal(entity.CreatedAt))
}

func (s *PostgresStoreSuite) TestNaturalKeyUniqueAcrossRows() {
	s.Require().NoError(s.store.Insert(s.ctx, newIndividual("1234-5678-9012")))

	err := s.store.Insert(s.ctx, newIndividual("1234-5678-9012"))

	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindBySourceRecord() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	got, err := s.store.FindBySourceRecord(s.ctx, "LISTAHANAN", "L-1234-5678-9012")

	s.Require().NoError(err)
	s.Equal(entity.ID, got.ID)

	_, err = s.store.FindBySourceRecord(s.ctx, "LISTAHANAN", "unknown")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestOptimisticUpdate() {
	entity := newIndividual("1234-5678-9012")
	s.Require().NoError(s.store.Insert(s.ctx, entity))

	next := entity
	next.Version = 2
	next.UpdatedAt = entity.UpdatedAt.Add(time.Minute)
	next.SourceRecords = append(next.SourceRecords, registry.SourceRecord{
		SourceSystem:   "MANUAL_ENTRY",
		SourceRecordID: "M-0001",
		IngestionID:    id.NewIngestionID(),
		SubmittedBy:    "clerk",
		ReceivedAt:     next.UpdatedAt,
	})
	s.Require().NoError(s.store.Update(s.ctx, next))

	stale := entity
	stale.Version = 2
	s.ErrorIs(s.store.Update(s.ctx, stale), sentinel.ErrConflict)

	got, err := s.store.Get(s.ctx, entity.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Version)
	s.Len(got.SourceRecords, 2)
}

func (s *PostgresStoreSuite) TestGetManyAndForEach() {
	a := newIndividual("1111-2222-3333")
	b := newIndividual("4444-5555-6666")
	s.Require().NoError(s.store.Insert(s.ctx, a))
	s.Require().NoError(s.store.Insert(s.ctx, b))

	many, err := s.store.GetMany(s.ctx, []id.EntityID{a.ID, b.ID, id.NewEntityID()})
	s.Require().NoError(err)
	s.Len(many, 2)

	var visited int
	s.Require().NoError(s.store.ForEach(s.ctx, func(registry.Entity) error {
		visited++
		return nil
	}))
	s.Equal(2, visited)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}
