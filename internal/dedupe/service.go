// Package dedupe runs the duplicate-detection pipeline: normalize, block,
// score, decide. It owns the blocking index and exposes both the standalone
// pre-submission check and the resolution step the ingestion orchestrator
// drives per record.
package dedupe

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	domainerrors "registro/pkg/domain-errors"

	"registro/internal/dedupe/block"
	"registro/internal/dedupe/decide"
	"registro/internal/dedupe/match"
	"registro/internal/dedupe/metrics"
	"registro/internal/dedupe/models"
	"registro/internal/dedupe/normalize"
	"registro/internal/registry"
	id "registro/pkg/domain"
)

// Service wires the pipeline stages together. Stages are pure; the only
// stateful pieces are the blocking index and the registry reads.
type Service struct {
	store      registry.Store
	index      *block.Index
	normalizer *normalize.Normalizer
	matcher    *match.Matcher
	engine     *decide.Engine
	logger     *slog.Logger
	metrics    *metrics.Metrics

	checksTotal     atomic.Int64
	duplicatesFound atomic.Int64
	decisionCounts  [3]atomic.Int64
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

func WithMatcher(m *match.Matcher) Option {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

func WithEngine(e *decide.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

func WithIndex(ix *block.Index) Option {
	return func(s *Service) {
		if ix != nil {
			s.index = ix
		}
	}
}

func New(store registry.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "dedupe service requires a registry store")
	}
	engine, err := decide.New(decide.DefaultMatchThreshold, decide.DefaultReviewThreshold)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:      store,
		index:      block.NewIndex(),
		normalizer: normalize.New(),
		matcher:    match.New(),
		engine:     engine,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Engine exposes the decision thresholds in effect.
func (s *Service) Engine() *decide.Engine { return s.engine }

// Normalize derives the canonical form of a record.
func (s *Service) Normalize(rec models.Record) models.NormalizedRecord {
	return s.normalizer.Normalize(rec)
}

// CheckRequest is a standalone pre-submission duplicate check. Threshold is
// the report-level cutoff: candidates scoring below it are discarded from the
// response entirely, independent of the decision bands.
type CheckRequest struct {
	Record    models.Record
	Algorithm models.Algorithm
	Threshold float64
}

type CheckResult struct {
	Algorithm   models.Algorithm
	Threshold   float64
	Matches     []models.Candidate
	ProcessedAt time.Time
}

// Check scores the record against its blocking candidates. Per the upstream
// contract this never hard-fails on cosmetic input problems: an empty record,
// an unknown entity type, or an unsupported algorithm all yield zero matches.
func (s *Service) Check(ctx context.Context, req CheckRequest) (CheckResult, error) {
	started := time.Now()
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = models.AlgorithmFuzzy
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.engine.ReviewThreshold()
	}
	result := CheckResult{Algorithm: algorithm, Threshold: threshold, ProcessedAt: started.UTC()}

	s.checksTotal.Add(1)
	s.metrics.IncrementCheck(string(algorithm))
	defer func() { s.metrics.ObserveCheckLatency(time.Since(started)) }()

	if !req.Record.Type.IsValid() {
		s.logger.InfoContext(ctx, "duplicate check for unknown entity type", "entityType", req.Record.Type)
		return result, nil
	}
	if !algorithm.IsValid() {
		// MatchingError band: logged, surfaced as zero matches.
		s.logger.WarnContext(ctx, "unsupported matching algorithm", "algorithm", algorithm)
		return result, nil
	}

	normalized := s.normalizer.Normalize(req.Record)
	if normalized.IsEmpty() {
		return result, nil
	}

	candidates, err := s.score(ctx, normalized, algorithm)
	if err != nil {
		return CheckResult{}, err
	}
	for _, c := range candidates {
		if c.Confidence >= threshold {
			result.Matches = append(result.Matches, c)
		}
	}
	if len(result.Matches) > 0 {
		s.duplicatesFound.Add(int64(len(result.Matches)))
	}
	return result, nil
}

// Resolve runs the full pipeline for an already-normalized record and returns
// the decision-engine outcome. Used by the ingestion orchestrator.
func (s *Service) Resolve(ctx context.Context, normalized models.NormalizedRecord, algorithm models.Algorithm) (models.Resolution, error) {
	if algorithm == "" {
		algorithm = models.AlgorithmFuzzy
	}
	if !algorithm.IsValid() {
		return models.Resolution{}, domainerrors.New(domainerrors.CodeInvalidInput,
			"unsupported matching algorithm: "+string(algorithm))
	}

	var candidates []models.Candidate
	if !normalized.IsEmpty() {
		var err error
		candidates, err = s.score(ctx, normalized, algorithm)
		if err != nil {
			return models.Resolution{}, err
		}
	}

	resolution := s.engine.Resolve(candidates, time.Now().UTC())
	s.recordDecision(resolution.Decision)
	return resolution, nil
}

// score retrieves blocking candidates, loads them, and runs the matcher
// against each. Output is sorted by confidence descending, entity ID ascending
// on ties.
func (s *Service) score(ctx context.Context, normalized models.NormalizedRecord, algorithm models.Algorithm) ([]models.Candidate, error) {
	ids, truncated := s.index.Candidates(normalized.BlockingKeys)
	s.metrics.ObserveCandidatePool(len(ids), truncated)
	if truncated {
		s.logger.WarnContext(ctx, "candidate pool truncated by cap",
			"keys", len(normalized.BlockingKeys), "candidates", len(ids))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entities, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "load candidate entities")
	}

	candidates := make([]models.Candidate, 0, len(entities))
	for _, entity := range entities {
		confidence, fields, err := s.matcher.Score(algorithm, normalized, entity.Normalized)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, models.Candidate{
			EntityID:    entity.ID,
			Confidence:  confidence,
			Algorithm:   algorithm,
			FieldScores: fields,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].EntityID.String() < candidates[j].EntityID.String()
	})
	return candidates, nil
}

// IndexEntity registers an entity's blocking keys, replacing any prior entry.
func (s *Service) IndexEntity(entity registry.Entity) {
	s.index.Insert(entity.ID, entity.Normalized.BlockingKeys)
}

// RemoveFromIndex drops an entity, used when a review rejection deletes a
// provisional entity.
func (s *Service) RemoveFromIndex(entityID id.EntityID) {
	s.index.Remove(entityID)
}

// RebuildIndex repopulates the blocking index from the registry store. Called
// once at startup; the index is otherwise maintained incrementally.
func (s *Service) RebuildIndex(ctx context.Context) error {
	s.index.Reset()
	err := s.store.ForEach(ctx, func(entity registry.Entity) error {
		s.index.Insert(entity.ID, entity.Normalized.BlockingKeys)
		return nil
	})
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "rebuild blocking index")
	}
	s.logger.InfoContext(ctx, "blocking index rebuilt",
		"entities", s.index.Len(), "keys", s.index.KeyCount())
	return nil
}

// Stats is a point-in-time snapshot of dedupe activity since process start.
type Stats struct {
	TotalChecks     int64 `json:"totalChecks"`
	DuplicatesFound int64 `json:"duplicatesFound"`
	Matches         int64 `json:"matches"`
	PossibleMatches int64 `json:"possibleMatches"`
	NoMatches       int64 `json:"noMatches"`
	IndexedEntities int   `json:"indexedEntities"`
	BlockingKeys    int   `json:"blockingKeys"`
}

func (s *Service) Stats(context.Context) (Stats, error) {
	return Stats{
		TotalChecks:     s.checksTotal.Load(),
		DuplicatesFound: s.duplicatesFound.Load(),
		Matches:         s.decisionCounts[0].Load(),
		PossibleMatches: s.decisionCounts[1].Load(),
		NoMatches:       s.decisionCounts[2].Load(),
		IndexedEntities: s.index.Len(),
		BlockingKeys:    s.index.KeyCount(),
	}, nil
}

func (s *Service) recordDecision(decision models.Decision) {
	s.metrics.IncrementDecision(string(decision))
	switch decision {
	case models.DecisionMatch:
		s.decisionCounts[0].Add(1)
	case models.DecisionPossibleMatch:
		s.decisionCounts[1].Add(1)
	default:
		s.decisionCounts[2].Add(1)
	}
}
