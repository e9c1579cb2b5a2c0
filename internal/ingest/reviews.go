package ingest

import (
	"context"
	"time"

	dedupeModels "registro/internal/dedupe/models"
	"registro/internal/ingest/models"
	"registro/internal/ingest/review"
	"registro/internal/registry"
	id "registro/pkg/domain"
	domainerrors "registro/pkg/domain-errors"
	"registro/pkg/platform/audit"
	"registro/pkg/requestcontext"
)

// PendingReviews lists items awaiting human resolution, oldest first.
func (s *Service) PendingReviews(ctx context.Context) ([]review.Item, error) {
	items, err := s.reviews.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetReviewQueueDepth(len(items))
	return items, nil
}

// ApproveReview merges the held record into its top candidate entity. The
// item is claimed (resolved) first so two reviewers cannot both act on it;
// the merge then retries like any registry write.
func (s *Service) ApproveReview(ctx context.Context, reviewID id.ReviewID, resolvedBy string) (review.Item, id.EntityID, error) {
	item, err := s.reviews.Resolve(ctx, reviewID, review.StatusApproved, resolvedBy, time.Now().UTC())
	if err != nil {
		return review.Item{}, id.EntityID{}, err
	}
	if len(item.Candidates) == 0 {
		return review.Item{}, id.EntityID{}, domainerrors.New(domainerrors.CodeInternal, "review item has no candidates")
	}
	target := item.Candidates[0].EntityID

	outcome := s.merge(ctx, item.IngestionID, -1, requestFromItem(item), target, item.Candidates[0].Confidence, "approved by reviewer")
	if outcome.kind == outcomeFailed {
		return review.Item{}, id.EntityID{}, domainerrors.New(domainerrors.CodeUnavailable, "merge after approval failed")
	}
	s.emit(ctx, audit.Event{
		Action:       audit.ActionReviewApproved,
		EntityType:   item.Record.Type,
		EntityID:     target,
		SourceSystem: item.SourceSystem,
		SubmittedBy:  resolvedBy,
		Decision:     string(dedupeModels.DecisionMatch),
		Confidence:   item.Candidates[0].Confidence,
		RequestID:    requestcontext.RequestID(ctx),
	})
	return item, target, nil
}

// RejectReview commits the held record as a distinct new entity.
func (s *Service) RejectReview(ctx context.Context, reviewID id.ReviewID, resolvedBy string) (review.Item, id.EntityID, error) {
	item, err := s.reviews.Resolve(ctx, reviewID, review.StatusRejected, resolvedBy, time.Now().UTC())
	if err != nil {
		return review.Item{}, id.EntityID{}, err
	}

	normalized := s.dedupe.Normalize(item.Record)
	now := time.Now().UTC()
	entity := registry.Entity{
		ID:         id.NewEntityID(),
		Type:       item.Record.Type,
		Attributes: item.Record,
		Normalized: normalized,
		SourceRecords: []registry.SourceRecord{{
			SourceSystem:   item.SourceSystem,
			SourceRecordID: item.SourceRecordID,
			IngestionID:    item.IngestionID,
			SubmittedBy:    item.SubmittedBy,
			ReceivedAt:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := s.withRetry(ctx, func() error { return s.registry.Insert(ctx, entity) }); err != nil {
		return review.Item{}, id.EntityID{}, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "create entity after rejection failed")
	}
	s.dedupe.IndexEntity(entity)
	s.emit(ctx, audit.Event{
		Action:       audit.ActionReviewRejected,
		EntityType:   entity.Type,
		EntityID:     entity.ID,
		SourceSystem: item.SourceSystem,
		SubmittedBy:  resolvedBy,
		Decision:     string(dedupeModels.DecisionNoMatch),
		RequestID:    requestcontext.RequestID(ctx),
	})
	return item, entity.ID, nil
}

func requestFromItem(item review.Item) models.Request {
	return models.Request{
		SourceSystem:   item.SourceSystem,
		DataType:       item.Record.Type,
		SubmittedBy:    item.SubmittedBy,
		SourceRecordID: item.SourceRecordID,
	}
}
