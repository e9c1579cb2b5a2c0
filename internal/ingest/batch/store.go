// Package batch persists per-submission accounting so callers can poll
// ingestion status after the synchronous response.
package batch

import (
	"context"

	"registro/internal/ingest/models"
	id "registro/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, ingestion models.Ingestion) error
	// Update replaces the stored accounting. Returns sentinel.ErrNotFound
	// for an unknown ID and sentinel.ErrInvalidState when the stored row is
	// already closed.
	Update(ctx context.Context, ingestion models.Ingestion) error
	Get(ctx context.Context, ingestionID id.IngestionID) (models.Ingestion, error)
}
