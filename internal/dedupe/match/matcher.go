// Package match scores candidate pairs. Scoring is pure: no I/O, no clock,
// identical inputs always produce the same confidence.
package match

import (
	domainerrors "registro/pkg/domain-errors"

	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
)

// Weights control how field similarities aggregate into a confidence.
// They must sum to 1 for the confidence to stay in [0,1] without clamping,
// but the matcher clamps regardless.
type Weights struct {
	Name      float64
	BirthDate float64
	Address   float64
}

// DefaultWeights mirror the production tuning: names dominate, birth date
// and address split the remainder.
var DefaultWeights = Weights{Name: 0.4, BirthDate: 0.3, Address: 0.3}

// neutralScore is used when a field is absent on either side. An absent field
// carries no evidence, for or against.
const neutralScore = 0.5

// fieldReportFloor: field-level detail below this adds noise for reviewers,
// so only similarities above it appear in the candidate breakdown.
const fieldReportFloor = 0.5

type Matcher struct {
	weights Weights
}

type Option func(*Matcher)

func WithWeights(w Weights) Option {
	return func(m *Matcher) {
		if w.Name > 0 || w.BirthDate > 0 || w.Address > 0 {
			m.weights = w
		}
	}
}

func New(opts ...Option) *Matcher {
	m := &Matcher{weights: DefaultWeights}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Score compares an incoming record against one candidate under the given
// algorithm, returning the aggregate confidence in [0,1] and the per-field
// breakdown. Records of different entity types never match.
func (m *Matcher) Score(alg models.Algorithm, incoming, existing models.NormalizedRecord) (float64, []models.FieldScore, error) {
	if !alg.IsValid() {
		return 0, nil, domainerrors.New(domainerrors.CodeInvalidInput, "unknown matching algorithm: "+string(alg))
	}
	if incoming.Type != existing.Type {
		return 0, nil, nil
	}

	switch alg {
	case models.AlgorithmExact:
		return m.scoreExact(incoming, existing)
	case models.AlgorithmPhonetic:
		return m.scoreWeighted(incoming, existing, phoneticNameSimilarity)
	default:
		return m.scoreWeighted(incoming, existing, fuzzyNameSimilarity)
	}
}

// scoreExact is all or nothing. A shared identifier (PSN or household number)
// is conclusive on its own; otherwise every identity-critical field must be
// present and byte-equal after normalization.
func (m *Matcher) scoreExact(incoming, existing models.NormalizedRecord) (float64, []models.FieldScore, error) {
	if incoming.Type == id.EntityTypeHousehold {
		if incoming.HouseholdNumber != "" && incoming.HouseholdNumber == existing.HouseholdNumber {
			return 1, []models.FieldScore{fieldScore("householdNumber", incoming.HouseholdNumber, existing.HouseholdNumber, 1)}, nil
		}
		if incoming.FullName != "" && incoming.FullName == existing.FullName &&
			incoming.Address != "" && incoming.Address == existing.Address {
			return 1, []models.FieldScore{
				fieldScore("headName", incoming.FullName, existing.FullName, 1),
				fieldScore("address", incoming.Address, existing.Address, 1),
			}, nil
		}
		return 0, nil, nil
	}

	if incoming.PSN != "" && incoming.PSN == existing.PSN {
		return 1, []models.FieldScore{fieldScore("psn", incoming.PSN, existing.PSN, 1)}, nil
	}
	if incoming.FullName != "" && incoming.FullName == existing.FullName &&
		incoming.BirthDate != "" && incoming.BirthDate == existing.BirthDate &&
		incoming.Address != "" && incoming.Address == existing.Address {
		return 1, []models.FieldScore{
			fieldScore("name", incoming.FullName, existing.FullName, 1),
			fieldScore("birthDate", incoming.BirthDate, existing.BirthDate, 1),
			fieldScore("address", incoming.Address, existing.Address, 1),
		}, nil
	}
	return 0, nil, nil
}

type nameSimilarityFunc func(incoming, existing models.NormalizedRecord) float64

func (m *Matcher) scoreWeighted(incoming, existing models.NormalizedRecord, nameSim nameSimilarityFunc) (float64, []models.FieldScore, error) {
	// A shared PSN or household number is conclusive regardless of how the
	// softer fields compare.
	if incoming.Type == id.EntityTypeIndividual && incoming.PSN != "" && incoming.PSN == existing.PSN {
		return 1, []models.FieldScore{fieldScore("psn", incoming.PSN, existing.PSN, 1)}, nil
	}
	if incoming.Type == id.EntityTypeHousehold && incoming.HouseholdNumber != "" && incoming.HouseholdNumber == existing.HouseholdNumber {
		return 1, []models.FieldScore{fieldScore("householdNumber", incoming.HouseholdNumber, existing.HouseholdNumber, 1)}, nil
	}

	var fields []models.FieldScore
	report := func(name, in, ex string, score float64) {
		if score > fieldReportFloor && in != "" && ex != "" {
			fields = append(fields, fieldScore(name, in, ex, score))
		}
	}

	name := neutralScore
	if incoming.FullName != "" && existing.FullName != "" {
		name = nameSim(incoming, existing)
		report("name", incoming.DisplayName, existing.DisplayName, name)
	}

	// Birth date is structured: same day or nothing. Households carry no
	// birth date, so the neutral score applies to them throughout.
	birth := neutralScore
	if incoming.BirthDate != "" && existing.BirthDate != "" {
		birth = 0
		if incoming.BirthDate == existing.BirthDate {
			birth = 1
		}
		report("birthDate", incoming.BirthDate, existing.BirthDate, birth)
	}

	address := neutralScore
	if incoming.Address != "" && existing.Address != "" {
		address = levenshteinSimilarity(incoming.Address, existing.Address)
		report("address", incoming.Address, existing.Address, address)
	}

	confidence := clamp01(name*m.weights.Name + birth*m.weights.BirthDate + address*m.weights.Address)
	return confidence, fields, nil
}

// fuzzyNameSimilarity averages edit-distance and Jaro-Winkler signals over the
// full name. The blend tolerates both mid-word typos and truncated tails.
func fuzzyNameSimilarity(incoming, existing models.NormalizedRecord) float64 {
	return (levenshteinSimilarity(incoming.FullName, existing.FullName) +
		jaroWinkler(incoming.FullName, existing.FullName)) / 2
}

// phoneticNameSimilarity scores on Soundex equality of the name parts, then
// falls back to a muted fuzzy signal so near-phonetic pairs are not zeroed.
func phoneticNameSimilarity(incoming, existing models.NormalizedRecord) float64 {
	lastEq := incoming.LastNamePhonetic != "" && incoming.LastNamePhonetic == existing.LastNamePhonetic
	firstEq := incoming.FirstNamePhonetic != "" && incoming.FirstNamePhonetic == existing.FirstNamePhonetic
	switch {
	case lastEq && firstEq:
		return 1
	case lastEq || firstEq:
		return 0.5 + fuzzyNameSimilarity(incoming, existing)/2*0.5
	default:
		return fuzzyNameSimilarity(incoming, existing) * 0.5
	}
}

func fieldScore(name, incoming, existing string, score float64) models.FieldScore {
	return models.FieldScore{
		Field:         name,
		IncomingValue: incoming,
		ExistingValue: existing,
		Score:         score,
	}
}
