//go:build integration

package batch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"registro/internal/ingest/batch"
	"registro/internal/ingest/models"
	"registro/internal/ingest/validate"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
	"registro/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.PostgresContainer
	store     *batch.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewPostgresContainer(s.T(), batch.Schema)
	s.store = batch.NewPostgresStore(s.container.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.container.TruncateTables(s.ctx, "ingestion_batches"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ingestion := newIngestion()
	ingestion.ValidationErrors = []models.RecordError{{
		RecordIndex: 0,
		Fields:      []validate.FieldError{{Field: "psn", Message: "must match NNNN-NNNN-NNNN or NNNN-NNNN-NNNN-NNNN"}},
	}}
	s.Require().NoError(s.store.Create(s.ctx, ingestion))

	got, err := s.store.Get(s.ctx, ingestion.ID)

	s.Require().NoError(err)
	s.Equal(ingestion.ID, got.ID)
	s.Equal(ingestion.BatchID, got.BatchID)
	s.Equal(models.StatusProcessing, got.Status)
	s.Require().Len(got.ValidationErrors, 1)
	s.Equal("psn", got.ValidationErrors[0].Fields[0].Field)
	s.True(got.SubmittedAt.Equal(ingestion.SubmittedAt))
}

func (s *PostgresStoreSuite) TestClosureIsTerminal() {
	ingestion := newIngestion()
	s.Require().NoError(s.store.Create(s.ctx, ingestion))

	closed := ingestion
	closed.Status = models.StatusSuccess
	closed.SuccessfulRecords = 3
	s.Require().NoError(s.store.Update(s.ctx, closed))

	closed.Status = models.StatusFailed
	s.ErrorIs(s.store.Update(s.ctx, closed), sentinel.ErrInvalidState)
}

func (s *PostgresStoreSuite) TestUpdateUnknownIsNotFound() {
	s.ErrorIs(s.store.Update(s.ctx, newIngestion()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetUnknownIsNotFound() {
	_, err := s.store.Get(s.ctx, id.NewIngestionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
