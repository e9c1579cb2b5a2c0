// Package review holds POSSIBLE_MATCH records awaiting an explicit human
// decision. Every queued item must end in approve-merge or reject-as-distinct;
// nothing here ever silently downgrades to NO_MATCH.
package review

import (
	"context"
	"time"

	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Item is one record held for review together with its ranked candidates.
type Item struct {
	ID             id.ReviewID             `json:"reviewId"`
	IngestionID    id.IngestionID          `json:"ingestionId"`
	SourceSystem   string                  `json:"sourceSystem"`
	SourceRecordID string                  `json:"sourceRecordId,omitempty"`
	SubmittedBy    string                  `json:"submittedBy"`
	Record         models.Record           `json:"record"`
	Normalized     models.NormalizedRecord `json:"-"`
	Candidates     []models.Candidate      `json:"candidates"`
	Status         Status                  `json:"status"`
	EnqueuedAt     time.Time               `json:"enqueuedAt"`
	ResolvedAt     *time.Time              `json:"resolvedAt,omitempty"`
	ResolvedBy     string                  `json:"resolvedBy,omitempty"`
}

// Queue persists review items. Enqueue failure is fatal for the record that
// produced the item.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Get(ctx context.Context, reviewID id.ReviewID) (Item, error)
	ListPending(ctx context.Context) ([]Item, error)
	// Resolve transitions a pending item to a terminal status. Returns
	// sentinel.ErrInvalidState when the item is already resolved.
	Resolve(ctx context.Context, reviewID id.ReviewID, status Status, resolvedBy string, at time.Time) (Item, error)
}
