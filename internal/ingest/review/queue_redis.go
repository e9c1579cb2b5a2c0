package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"registro/pkg/platform/sentinel"

	id "registro/pkg/domain"
)

const (
	itemKeyPrefix = "review:item:"
	pendingSetKey = "review:pending"
)

// RedisQueue persists review items as JSON values plus a pending set, so the
// queue survives process restarts. Items carry no TTL: a POSSIBLE_MATCH stays
// until a human resolves it.
type RedisQueue struct {
	rdb redis.Cmdable
}

func NewRedisQueue(rdb redis.Cmdable) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func itemKey(reviewID id.ReviewID) string {
	return itemKeyPrefix + reviewID.String()
}

func (q *RedisQueue) Enqueue(ctx context.Context, item Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode review item: %w", err)
	}
	ok, err := q.rdb.SetNX(ctx, itemKey(item.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("store review item: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	if err := q.rdb.SAdd(ctx, pendingSetKey, item.ID.String()).Err(); err != nil {
		return fmt.Errorf("add review item to pending set: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, reviewID id.ReviewID) (Item, error) {
	raw, err := q.rdb.Get(ctx, itemKey(reviewID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("load review item: %w", err)
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return Item{}, fmt.Errorf("decode review item: %w", err)
	}
	return item, nil
}

func (q *RedisQueue) ListPending(ctx context.Context) ([]Item, error) {
	ids, err := q.rdb.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	items := make([]Item, 0, len(ids))
	for _, raw := range ids {
		reviewID, err := id.ParseReviewID(raw)
		if err != nil {
			continue
		}
		item, err := q.Get(ctx, reviewID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Orphaned set member; drop it.
			_ = q.rdb.SRem(ctx, pendingSetKey, raw).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if item.Status == StatusPending {
			items = append(items, item)
		}
	}
	sortByEnqueuedAt(items)
	return items, nil
}

// Resolve claims the item by removing its pending-set member first. SRem
// returns 1 for exactly one caller, so two concurrent resolvers cannot both
// act on the same held record.
func (q *RedisQueue) Resolve(ctx context.Context, reviewID id.ReviewID, status Status, resolvedBy string, at time.Time) (Item, error) {
	claimed, err := q.rdb.SRem(ctx, pendingSetKey, reviewID.String()).Result()
	if err != nil {
		return Item{}, fmt.Errorf("claim review item: %w", err)
	}
	item, err := q.Get(ctx, reviewID)
	if err != nil {
		if claimed == 1 {
			_ = q.rdb.SAdd(ctx, pendingSetKey, reviewID.String()).Err()
		}
		return Item{}, err
	}
	if claimed == 0 {
		return Item{}, sentinel.ErrInvalidState
	}
	item.Status = status
	item.ResolvedBy = resolvedBy
	item.ResolvedAt = &at

	raw, err := json.Marshal(item)
	if err != nil {
		_ = q.rdb.SAdd(ctx, pendingSetKey, reviewID.String()).Err()
		return Item{}, fmt.Errorf("encode review item: %w", err)
	}
	if err := q.rdb.Set(ctx, itemKey(reviewID), raw, 0).Err(); err != nil {
		// Release the claim so the item does not become unresolvable.
		_ = q.rdb.SAdd(ctx, pendingSetKey, reviewID.String()).Err()
		return Item{}, fmt.Errorf("resolve review item: %w", err)
	}
	return item, nil
}
