package review

import (
	"context"
	"sync"
	"time"

	"registro/pkg/platform/sentinel"

	id "registro/pkg/domain"
)

// InMemoryQueue backs tests and deployments without Redis.
type InMemoryQueue struct {
	mu    sync.RWMutex
	items map[id.ReviewID]Item
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{items: make(map[id.ReviewID]Item)}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[item.ID]; ok {
		return sentinel.ErrConflict
	}
	q.items[item.ID] = item
	return nil
}

func (q *InMemoryQueue) Get(_ context.Context, reviewID id.ReviewID) (Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if item, ok := q.items[reviewID]; ok {
		return item, nil
	}
	return Item{}, sentinel.ErrNotFound
}

func (q *InMemoryQueue) ListPending(_ context.Context) ([]Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var pending []Item
	for _, item := range q.items {
		if item.Status == StatusPending {
			pending = append(pending, item)
		}
	}
	sortByEnqueuedAt(pending)
	return pending, nil
}

func (q *InMemoryQueue) Resolve(_ context.Context, reviewID id.ReviewID, status Status, resolvedBy string, at time.Time) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[reviewID]
	if !ok {
		return Item{}, sentinel.ErrNotFound
	}
	if item.Status != StatusPending {
		return Item{}, sentinel.ErrInvalidState
	}
	item.Status = status
	item.ResolvedBy = resolvedBy
	item.ResolvedAt = &at
	q.items[reviewID] = item
	return item, nil
}
