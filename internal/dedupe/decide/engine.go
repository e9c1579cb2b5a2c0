// Package decide partitions scored candidates into match decisions against a
// pair of thresholds.
package decide

import (
	"fmt"
	"sort"
	"time"

	domainerrors "registro/pkg/domain-errors"

	"registro/internal/dedupe/models"
)

// DefaultMatchThreshold and DefaultReviewThreshold mirror the shipped policy.
const (
	DefaultMatchThreshold  = 0.90
	DefaultReviewThreshold = 0.75
)

// Engine classifies confidences. Thresholds are fixed at construction so a
// single ingestion batch is judged consistently throughout.
type Engine struct {
	matchThreshold  float64
	reviewThreshold float64
}

// New validates that 0 < reviewThreshold < matchThreshold <= 1. Anything else
// would make the POSSIBLE_MATCH band empty or inverted.
func New(matchThreshold, reviewThreshold float64) (*Engine, error) {
	if matchThreshold <= 0 || matchThreshold > 1 {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput,
			fmt.Sprintf("match threshold %.2f outside (0, 1]", matchThreshold))
	}
	if reviewThreshold <= 0 || reviewThreshold >= matchThreshold {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput,
			fmt.Sprintf("review threshold %.2f must be in (0, %.2f)", reviewThreshold, matchThreshold))
	}
	return &Engine{matchThreshold: matchThreshold, reviewThreshold: reviewThreshold}, nil
}

func (e *Engine) MatchThreshold() float64  { return e.matchThreshold }
func (e *Engine) ReviewThreshold() float64 { return e.reviewThreshold }

// Classify maps a single confidence to its decision band.
func (e *Engine) Classify(confidence float64) models.Decision {
	switch {
	case confidence >= e.matchThreshold:
		return models.DecisionMatch
	case confidence >= e.reviewThreshold:
		return models.DecisionPossibleMatch
	default:
		return models.DecisionNoMatch
	}
}

// Resolve picks the outcome for a full candidate set: the single best MATCH
// wins outright; failing that, every POSSIBLE_MATCH is surfaced ranked by
// confidence; an empty remainder means a new entity. Ties on confidence break
// by entity ID so resolution is deterministic.
func (e *Engine) Resolve(candidates []models.Candidate, now time.Time) models.Resolution {
	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].EntityID.String() < ranked[j].EntityID.String()
	})

	var forReview []models.Candidate
	for i := range ranked {
		switch e.Classify(ranked[i].Confidence) {
		case models.DecisionMatch:
			best := ranked[i]
			return models.Resolution{
				Decision:  models.DecisionMatch,
				Best:      &best,
				DecidedAt: now,
			}
		case models.DecisionPossibleMatch:
			forReview = append(forReview, ranked[i])
		}
	}

	if len(forReview) > 0 {
		top := forReview[0]
		return models.Resolution{
			Decision:  models.DecisionPossibleMatch,
			Best:      &top,
			ForReview: forReview,
			DecidedAt: now,
		}
	}
	return models.Resolution{Decision: models.DecisionNoMatch, DecidedAt: now}
}
