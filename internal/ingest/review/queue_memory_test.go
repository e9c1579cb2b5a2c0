package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registro/internal/dedupe/models"
	"registro/internal/ingest/review"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
)

type MemoryQueueSuite struct {
	suite.Suite
	ctx   context.Context
	queue *review.InMemoryQueue
}

func TestMemoryQueueSuite(t *testing.T) {
	suite.Run(t, new(MemoryQueueSuite))
}

func (s *MemoryQueueSuite) SetupTest() {
	s.ctx = context.Background()
	s.queue = review.NewInMemoryQueue()
}

func newItem(enqueuedAt time.Time) review.Item {
	return review.Item{
		ID:           id.NewReviewID(),
		IngestionID:  id.NewIngestionID(),
		SourceSystem: "LISTAHANAN",
		SubmittedBy:  "importer",
		Record: models.Record{
			Type:       id.EntityTypeIndividual,
			Individual: &models.IndividualAttrs{FirstName: "Juan", LastName: "Santos"},
		},
		Candidates: []models.Candidate{{EntityID: id.NewEntityID(), Confidence: 0.8, Algorithm: models.AlgorithmFuzzy}},
		Status:     review.StatusPending,
		EnqueuedAt: enqueuedAt,
	}
}

func (s *MemoryQueueSuite) TestEnqueueAndGet() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	got, err := s.queue.Get(s.ctx, item.ID)

	s.Require().NoError(err)
	s.Equal(item.ID, got.ID)
	s.Equal(review.StatusPending, got.Status)
}

func (s *MemoryQueueSuite) TestEnqueueDuplicateConflicts() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	s.ErrorIs(s.queue.Enqueue(s.ctx, item), sentinel.ErrConflict)
}

func (s *MemoryQueueSuite) TestListPendingOrderedByEnqueueTime() {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	second := newItem(base.Add(time.Minute))
	first := newItem(base)
	s.Require().NoError(s.queue.Enqueue(s.ctx, second))
	s.Require().NoError(s.queue.Enqueue(s.ctx, first))

	pending, err := s.queue.ListPending(s.ctx)

	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(second.ID, pending[1].ID)
}

func (s *MemoryQueueSuite) TestResolveIsTerminal() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))
	at := time.Now().UTC()

	resolved, err := s.queue.Resolve(s.ctx, item.ID, review.StatusApproved, "reviewer", at)
	s.Require().NoError(err)
	s.Equal(review.StatusApproved, resolved.Status)
	s.Equal("reviewer", resolved.ResolvedBy)

	_, err = s.queue.Resolve(s.ctx, item.ID, review.StatusRejected, "reviewer", at)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	pending, err := s.queue.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *MemoryQueueSuite) TestResolveUnknownIsNotFound() {
	_, err := s.queue.Resolve(s.ctx, id.NewReviewID(), review.StatusApproved, "reviewer", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
