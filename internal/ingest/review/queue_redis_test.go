//go:build integration

package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registro/internal/ingest/review"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
	"registro/pkg/testutil/containers"
)

type RedisQueueSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.RedisContainer
	queue     *review.RedisQueue
}

func TestRedisQueueSuite(t *testing.T) {
	suite.Run(t, new(RedisQueueSuite))
}

func (s *RedisQueueSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewRedisContainer(s.T())
	s.queue = review.NewRedisQueue(s.container.Client)
}

func (s *RedisQueueSuite) SetupTest() {
	s.Require().NoError(s.container.FlushAll(s.ctx))
}

func (s *RedisQueueSuite) TestEnqueueGetRoundTrip() {
	item := newItem(time.Now().UTC().Truncate(time.Millisecond))
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	got, err := s.queue.Get(s.ctx, item.ID)

	s.Require().NoError(err)
	s.Equal(item.ID, got.ID)
	s.Equal(item.IngestionID, got.IngestionID)
	s.Equal(review.StatusPending, got.Status)
	s.Require().Len(got.Candidates, 1)
	s.Equal(item.Candidates[0].EntityID, got.Candidates[0].EntityID)
}

func (s *RedisQueueSuite) TestEnqueueDuplicateConflicts() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	s.ErrorIs(s.queue.Enqueue(s.ctx, item), sentinel.ErrConflict)
}

func (s *RedisQueueSuite) TestPendingSurvivesReconnect() {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first := newItem(base)
	second := newItem(base.Add(time.Minute))
	s.Require().NoError(s.queue.Enqueue(s.ctx, first))
	s.Require().NoError(s.queue.Enqueue(s.ctx, second))

	// A fresh queue over the same backend sees the same pending items.
	fresh := review.NewRedisQueue(s.container.Client)
	pending, err := fresh.ListPending(s.ctx)

	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
}

func (s *RedisQueueSuite) TestResolveRemovesFromPending() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	resolved, err := s.queue.Resolve(s.ctx, item.ID, review.StatusRejected, "reviewer", time.Now().UTC())
	s.Require().NoError(err)
	s.Equal(review.StatusRejected, resolved.Status)

	pending, err := s.queue.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	_, err = s.queue.Resolve(s.ctx, item.ID, review.StatusApproved, "reviewer", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *RedisQueueSuite) TestResolveConcurrentSingleWinner() {
	item := newItem(time.Now().UTC())
	s.Require().NoError(s.queue.Enqueue(s.ctx, item))

	start := make(chan struct{})
	results := make(chan error, 2)
	resolve := func(status review.Status, by string) {
		<-start
		_, err := s.queue.Resolve(s.ctx, item.ID, status, by, time.Now().UTC())
		results <- err
	}
	go resolve(review.StatusApproved, "first-reviewer")
	go resolve(review.StatusRejected, "second-reviewer")
	close(start)

	var losers int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			s.ErrorIs(err, sentinel.ErrInvalidState)
			losers++
		}
	}
	// Exactly one resolver wins; the other sees the item already claimed.
	s.Equal(1, losers)

	got, err := s.queue.Get(s.ctx, item.ID)
	s.Require().NoError(err)
	s.NotEqual(review.StatusPending, got.Status)

	pending, err := s.queue.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *RedisQueueSuite) TestResolveUnknownIsNotFound() {
	_, err := s.queue.Resolve(s.ctx, id.NewReviewID(), review.StatusApproved, "reviewer", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisQueueSuite) TestGetUnknownIsNotFound() {
	_, err := s.queue.Get(s.ctx, id.NewReviewID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
