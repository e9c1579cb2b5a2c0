// Package ingest drives records through the full pipeline: validate,
// normalize, match, decide, commit. Batch records are processed in parallel;
// only the registry commit takes a per-key lock.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	dedupeModels "registro/internal/dedupe/models"
	"registro/internal/ingest/batch"
	"registro/internal/ingest/metrics"
	"registro/internal/ingest/models"
	"registro/internal/ingest/review"
	"registro/internal/ingest/validate"
	"registro/internal/registry"
	id "registro/pkg/domain"
	domainerrors "registro/pkg/domain-errors"
	"registro/pkg/platform/audit"
	"registro/pkg/platform/audit/publisher"
	"registro/pkg/platform/sentinel"
	"registro/pkg/requestcontext"
)

// Dedupe is the slice of the dedupe service the orchestrator consumes.
type Dedupe interface {
	Normalize(rec dedupeModels.Record) dedupeModels.NormalizedRecord
	Resolve(ctx context.Context, normalized dedupeModels.NormalizedRecord, algorithm dedupeModels.Algorithm) (dedupeModels.Resolution, error)
	IndexEntity(entity registry.Entity)
}

const (
	defaultWorkers       = 8
	defaultRecordTimeout = 5 * time.Second
	writeAttempts        = 3
	writeBackoff         = 50 * time.Millisecond
)

type Service struct {
	registry  registry.Store
	dedupe    Dedupe
	validator *validate.Validator
	reviews   review.Queue
	batches   batch.Store
	audit     *publisher.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	workers       int
	recordTimeout time.Duration
	commits       *keyedLock
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *publisher.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithRecordTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recordTimeout = d
		}
	}
}

func New(store registry.Store, dedupeSvc Dedupe, reviews review.Queue, batches batch.Store, opts ...Option) (*Service, error) {
	if store == nil || dedupeSvc == nil || reviews == nil || batches == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "ingest service requires registry, dedupe, review queue, and batch store")
	}
	s := &Service{
		registry:      store,
		dedupe:        dedupeSvc,
		validator:     validate.New(),
		reviews:       reviews,
		batches:       batches,
		logger:        slog.Default(),
		workers:       defaultWorkers,
		recordTimeout: defaultRecordTimeout,
		commits:       newKeyedLock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IngestOne processes a single record submission.
func (s *Service) IngestOne(ctx context.Context, req models.Request) (models.Ingestion, error) {
	return s.run(ctx, "", []models.Request{req})
}

// IngestBatch processes a caller-identified batch. A malformed batch
// identifier fails the whole batch before any record is touched.
func (s *Service) IngestBatch(ctx context.Context, batchID string, reqs []models.Request) (models.Ingestion, error) {
	if batchID == "" || len(batchID) > models.MaxBatchIDLength {
		ingestion := s.newIngestion(ctx, batchID, reqs)
		ingestion.Status = models.StatusFailed
		ingestion.FailedRecords = len(reqs)
		ingestion.ValidationErrors = []models.RecordError{{
			RecordIndex: -1,
			Message:     "batchId must be non-empty and at most 100 characters",
		}}
		if err := s.batches.Create(ctx, ingestion); err != nil {
			return models.Ingestion{}, err
		}
		s.metrics.IncrementBatch(string(models.StatusFailed))
		return ingestion, nil
	}
	return s.run(ctx, batchID, reqs)
}

// GetIngestion looks up persisted batch accounting.
func (s *Service) GetIngestion(ctx context.Context, ingestionID id.IngestionID) (models.Ingestion, error) {
	return s.batches.Get(ctx, ingestionID)
}

func (s *Service) newIngestion(ctx context.Context, batchID string, reqs []models.Request) models.Ingestion {
	now := time.Now().UTC()
	ingestion := models.Ingestion{
		ID:           id.NewIngestionID(),
		BatchID:      batchID,
		SubmittedBy:  requestcontext.SubmittedBy(ctx),
		Status:       models.StatusProcessing,
		TotalRecords: len(reqs),
		SubmittedAt:  now,
		ProcessedAt:  now,
	}
	if len(reqs) > 0 {
		ingestion.SourceSystem = reqs[0].SourceSystem
		if ingestion.SubmittedBy == "" {
			ingestion.SubmittedBy = reqs[0].SubmittedBy
		}
	}
	return ingestion
}

func (s *Service) run(ctx context.Context, batchID string, reqs []models.Request) (models.Ingestion, error) {
	ingestion := s.newIngestion(ctx, batchID, reqs)
	if err := s.batches.Create(ctx, ingestion); err != nil {
		return models.Ingestion{}, err
	}

	var (
		successful atomic.Int64
		failed     atomic.Int64
		pending    atomic.Int64
		errsMu     sync.Mutex
		recordErrs []models.RecordError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range reqs {
		idx, req := i, reqs[i]
		g.Go(func() error {
			// Records are independent; a failure never aborts the batch.
			if gctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			recCtx, cancel := context.WithTimeout(gctx, s.recordTimeout)
			defer cancel()

			outcome := s.processRecord(recCtx, ingestion.ID, idx, req)
			switch outcome.kind {
			case outcomePending:
				pending.Add(1)
			case outcomeFailed:
				failed.Add(1)
				if outcome.err != nil {
					errsMu.Lock()
					recordErrs = append(recordErrs, *outcome.err)
					errsMu.Unlock()
				}
			default:
				successful.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	ingestion.SuccessfulRecords = int(successful.Load())
	ingestion.FailedRecords = int(failed.Load())
	ingestion.PendingReview = int(pending.Load())
	sort.Slice(recordErrs, func(i, j int) bool { return recordErrs[i].RecordIndex < recordErrs[j].RecordIndex })
	ingestion.ValidationErrors = recordErrs
	ingestion.Status = batchStatus(ingestion)
	ingestion.ProcessedAt = time.Now().UTC()

	if err := s.batches.Update(ctx, ingestion); err != nil {
		s.logger.ErrorContext(ctx, "failed to close ingestion batch",
			"ingestion_id", ingestion.ID.String(),
			"error", err.Error(),
		)
		return models.Ingestion{}, err
	}
	s.metrics.IncrementBatch(string(ingestion.Status))
	s.emit(ctx, audit.Event{
		Action:       audit.ActionBatchClosed,
		SourceSystem: ingestion.SourceSystem,
		SubmittedBy:  ingestion.SubmittedBy,
		Reason:       string(ingestion.Status),
		RequestID:    requestcontext.RequestID(ctx),
	})
	return ingestion, nil
}

// batchStatus derives the terminal status. Pending-review records count as
// accepted for status purposes: the batch did its part, a human owns the rest.
func batchStatus(ingestion models.Ingestion) models.Status {
	switch {
	case ingestion.FailedRecords == 0:
		return models.StatusSuccess
	case ingestion.SuccessfulRecords == 0 && ingestion.PendingReview == 0:
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomePending
	outcomeFailed
)

type recordOutcome struct {
	kind outcomeKind
	err  *models.RecordError
}

func failure(idx int, fields []validate.FieldError, message string) recordOutcome {
	return recordOutcome{kind: outcomeFailed, err: &models.RecordError{
		RecordIndex: idx,
		Fields:      fields,
		Message:     message,
	}}
}

func (s *Service) processRecord(ctx context.Context, ingestionID id.IngestionID, idx int, req models.Request) recordOutcome {
	started := time.Now()
	defer func() { s.metrics.ObserveRecordLatency(time.Since(started)) }()

	rec := dedupeModels.RecordFromPayload(req.DataType, req.Payload)
	if fieldErrs := s.validator.Validate(rec, time.Now().UTC()); len(fieldErrs) > 0 {
		s.metrics.IncrementRecord("failed")
		s.emit(ctx, audit.Event{
			Action:       audit.ActionRecordRejected,
			EntityType:   req.DataType,
			SourceSystem: req.SourceSystem,
			SubmittedBy:  req.SubmittedBy,
			Reason:       "validation failed",
			RequestID:    requestcontext.RequestID(ctx),
		})
		return failure(idx, fieldErrs, "")
	}
	if req.ValidateOnly {
		s.metrics.IncrementRecord("validated")
		return recordOutcome{kind: outcomeSuccess}
	}

	normalized := s.dedupe.Normalize(rec)

	// Idempotency: a re-submitted source record resolves as MATCH against
	// the entity it already merged into, without another write.
	if req.SourceRecordID != "" {
		if _, err := s.registry.FindBySourceRecord(ctx, req.SourceSystem, req.SourceRecordID); err == nil {
			s.metrics.IncrementRecord("merged")
			return recordOutcome{kind: outcomeSuccess}
		}
	}
	// Same for a natural key (PSN, household number) already in the
	// registry: attach instead of create, regardless of SkipDuplicateCheck.
	probe := registry.Entity{Type: rec.Type, Normalized: normalized}
	if key := probe.NaturalKey(); key != "" {
		if existing, err := s.registry.FindByNaturalKey(ctx, key); err == nil {
			return s.merge(ctx, ingestionID, idx, req, existing.ID, 1, "natural key already registered")
		}
	}

	if req.SkipDuplicateCheck {
		return s.create(ctx, ingestionID, idx, req, rec, normalized)
	}

	resolution, err := s.dedupe.Resolve(ctx, normalized, dedupeModels.AlgorithmFuzzy)
	if err != nil {
		s.logger.ErrorContext(ctx, "matching pass failed",
			"ingestion_id", ingestionID.String(),
			"record_index", idx,
			"error", err.Error(),
		)
		s.metrics.IncrementRecord("failed")
		return failure(idx, nil, "matching failed: "+domainerrors.MessageOf(err))
	}

	switch resolution.Decision {
	case dedupeModels.DecisionMatch:
		return s.merge(ctx, ingestionID, idx, req, resolution.Best.EntityID, resolution.Best.Confidence, "")
	case dedupeModels.DecisionPossibleMatch:
		return s.enqueueReview(ctx, ingestionID, idx, req, rec, resolution)
	default:
		return s.create(ctx, ingestionID, idx, req, rec, normalized)
	}
}

// merge attaches the record to an existing entity as additional evidence.
// Optimistic-version races with concurrent merges are retried.
func (s *Service) merge(ctx context.Context, ingestionID id.IngestionID, idx int, req models.Request, entityID id.EntityID, confidence float64, reason string) recordOutcome {
	err := s.withRetry(ctx, func() error {
		entity, err := s.registry.Get(ctx, entityID)
		if err != nil {
			return err
		}
		entity.SourceRecords = append(entity.SourceRecords, s.sourceRecord(ingestionID, req))
		entity.Version++
		entity.UpdatedAt = time.Now().UTC()
		return s.registry.Update(ctx, entity)
	})
	if err != nil {
		s.metrics.IncrementRecord("failed")
		return failure(idx, nil, "registry write failed")
	}
	s.metrics.IncrementRecord("merged")
	s.emit(ctx, audit.Event{
		Action:       audit.ActionEntityMerged,
		EntityType:   req.DataType,
		EntityID:     entityID,
		SourceSystem: req.SourceSystem,
		SubmittedBy:  req.SubmittedBy,
		Decision:     string(dedupeModels.DecisionMatch),
		Confidence:   confidence,
		Reason:       reason,
		RequestID:    requestcontext.RequestID(ctx),
	})
	return recordOutcome{kind: outcomeSuccess}
}

// create commits a brand-new entity. The per-blocking-key lock plus a second
// matching pass inside the critical section keep two concurrent workers from
// creating separate entities for the same person.
func (s *Service) create(ctx context.Context, ingestionID id.IngestionID, idx int, req models.Request, rec dedupeModels.Record, normalized dedupeModels.NormalizedRecord) recordOutcome {
	unlock := s.lockCommitKeys(normalized)
	defer unlock()

	if !req.SkipDuplicateCheck && len(normalized.BlockingKeys) > 0 {
		resolution, err := s.dedupe.Resolve(ctx, normalized, dedupeModels.AlgorithmFuzzy)
		if err == nil {
			switch resolution.Decision {
			case dedupeModels.DecisionMatch:
				return s.merge(ctx, ingestionID, idx, req, resolution.Best.EntityID, resolution.Best.Confidence, "matched during commit")
			case dedupeModels.DecisionPossibleMatch:
				return s.enqueueReview(ctx, ingestionID, idx, req, rec, resolution)
			}
		}
	}

	now := time.Now().UTC()
	entity := registry.Entity{
		ID:            id.NewEntityID(),
		Type:          rec.Type,
		Attributes:    rec,
		Normalized:    normalized,
		SourceRecords: []registry.SourceRecord{s.sourceRecord(ingestionID, req)},
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	err := s.withRetry(ctx, func() error { return s.registry.Insert(ctx, entity) })
	if errors.Is(err, sentinel.ErrConflict) {
		// Natural key claimed between the check and the insert.
		if existing, findErr := s.registry.FindByNaturalKey(ctx, entity.NaturalKey()); findErr == nil {
			return s.merge(ctx, ingestionID, idx, req, existing.ID, 1, "natural key claimed concurrently")
		}
	}
	if err != nil {
		s.metrics.IncrementRecord("failed")
		return failure(idx, nil, "registry write failed")
	}
	s.dedupe.IndexEntity(entity)
	s.metrics.IncrementRecord("created")
	s.emit(ctx, audit.Event{
		Action:       audit.ActionEntityCreated,
		EntityType:   entity.Type,
		EntityID:     entity.ID,
		SourceSystem: req.SourceSystem,
		SubmittedBy:  req.SubmittedBy,
		Decision:     string(dedupeModels.DecisionNoMatch),
		RequestID:    requestcontext.RequestID(ctx),
	})
	return recordOutcome{kind: outcomeSuccess}
}

// enqueueReview parks the record for human resolution. Enqueue failure is
// fatal for the record; it never silently downgrades to NO_MATCH.
func (s *Service) enqueueReview(ctx context.Context, ingestionID id.IngestionID, idx int, req models.Request, rec dedupeModels.Record, resolution dedupeModels.Resolution) recordOutcome {
	item := review.Item{
		ID:             id.NewReviewID(),
		IngestionID:    ingestionID,
		SourceSystem:   req.SourceSystem,
		SourceRecordID: req.SourceRecordID,
		SubmittedBy:    req.SubmittedBy,
		Record:         rec,
		Candidates:     resolution.ForReview,
		Status:         review.StatusPending,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := s.reviews.Enqueue(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "review enqueue failed",
			"ingestion_id", ingestionID.String(),
			"record_index", idx,
			"error", err.Error(),
		)
		s.metrics.IncrementRecord("failed")
		return failure(idx, nil, "review enqueue failed")
	}
	s.metrics.IncrementRecord("pending_review")
	s.emit(ctx, audit.Event{
		Action:       audit.ActionReviewQueued,
		EntityType:   req.DataType,
		SourceSystem: req.SourceSystem,
		SubmittedBy:  req.SubmittedBy,
		Decision:     string(dedupeModels.DecisionPossibleMatch),
		Confidence:   topConfidence(resolution),
		RequestID:    requestcontext.RequestID(ctx),
	})
	return recordOutcome{kind: outcomePending}
}

func topConfidence(resolution dedupeModels.Resolution) float64 {
	if resolution.Best != nil {
		return resolution.Best.Confidence
	}
	return 0
}

func (s *Service) sourceRecord(ingestionID id.IngestionID, req models.Request) registry.SourceRecord {
	return registry.SourceRecord{
		SourceSystem:   req.SourceSystem,
		SourceRecordID: req.SourceRecordID,
		IngestionID:    ingestionID,
		SubmittedBy:    req.SubmittedBy,
		ReceivedAt:     time.Now().UTC(),
	}
}

// lockCommitKeys acquires the commit locks for every blocking key of the
// record, in sorted order so concurrent workers cannot deadlock.
func (s *Service) lockCommitKeys(normalized dedupeModels.NormalizedRecord) func() {
	keys := make([]string, len(normalized.BlockingKeys))
	copy(keys, normalized.BlockingKeys)
	if len(keys) == 0 {
		keys = []string{""}
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, s.commits.lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// withRetry runs fn up to writeAttempts times with linear backoff. Version
// conflicts are retried (the merge loop re-reads); other sentinel states and
// context cancellation are not transient.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrInvalidState) {
			return err
		}
		if attempt == writeAttempts {
			return err
		}
		s.metrics.IncrementWriteRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * writeBackoff):
		}
	}
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err.Error())
	}
}
