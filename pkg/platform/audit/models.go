// Package audit captures one traceable entry per deduplication decision and
// registry mutation. Keep the event transport-agnostic so stores and sinks
// can fan out.
package audit

import (
	"context"
	"time"

	id "registro/pkg/domain"
)

// Action names the registry operation an event records.
type Action string

const (
	ActionEntityCreated  Action = "entity_created"
	ActionEntityMerged   Action = "entity_merged"
	ActionReviewQueued   Action = "review_queued"
	ActionReviewApproved Action = "review_approved"
	ActionReviewRejected Action = "review_rejected"
	ActionRecordRejected Action = "record_rejected"
	ActionBatchClosed    Action = "batch_closed"
)

// Event is emitted from the ingestion pipeline for every decision so merges
// and rejections stay reconstructible after the fact.
type Event struct {
	Action       Action
	Timestamp    time.Time
	EntityType   id.EntityType
	EntityID     id.EntityID
	SourceSystem string
	SubmittedBy  string
	// Decision holds the dedupe outcome (MATCH, POSSIBLE_MATCH, NO_MATCH)
	// for record-level events; empty for batch-level events.
	Decision   string
	Confidence float64
	Reason     string
	RequestID  string
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityID id.EntityID) ([]Event, error)
}
