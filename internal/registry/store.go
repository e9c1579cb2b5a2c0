package registry

import (
	"context"

	id "registro/pkg/domain"
)

// Store is interface-driven so the matching pipeline can run against the
// in-memory implementation in tests and Postgres in production without
// rewiring business code.
type Store interface {
	// Insert persists a new entity. Returns sentinel.ErrConflict if the ID
	// or a non-empty natural key is already taken.
	Insert(ctx context.Context, entity Entity) error
	// Update replaces an existing entity, guarded by optimistic version
	// check. Returns sentinel.ErrConflict on a version mismatch and
	// sentinel.ErrNotFound for an unknown ID.
	Update(ctx context.Context, entity Entity) error
	Get(ctx context.Context, entityID id.EntityID) (Entity, error)
	GetMany(ctx context.Context, entityIDs []id.EntityID) ([]Entity, error)
	// FindByNaturalKey resolves a strong identifier (PSN, household number)
	// to its entity. Returns sentinel.ErrNotFound when unclaimed.
	FindByNaturalKey(ctx context.Context, key string) (Entity, error)
	// FindBySourceRecord resolves a (sourceSystem, sourceRecordID) pair to
	// the entity it was merged into. Serves ingestion idempotency.
	FindBySourceRecord(ctx context.Context, sourceSystem, sourceRecordID string) (Entity, error)
	// ForEach streams every entity; used to rebuild the blocking index at
	// startup. Iteration stops on the first error returned by fn.
	ForEach(ctx context.Context, fn func(Entity) error) error
	Count(ctx context.Context) (int, error)
}
