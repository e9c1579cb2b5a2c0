// Package models defines the typed records flowing through the matching
// pipeline. Raw payloads arrive as untyped maps at the HTTP boundary and are
// converted into a Record (a tagged variant keyed by entity type) before any
// matching logic sees them.
package models

import (
	"time"

	id "registro/pkg/domain"
)

// HouseholdAttrs is the attribute set a household record carries.
type HouseholdAttrs struct {
	HouseholdNumber id.HouseholdNumber
	HeadName        string
	Address         string
	MemberCount     int
	MonthlyIncome   float64
}

// IndividualAttrs is the attribute set an individual record carries.
type IndividualAttrs struct {
	FirstName  string
	MiddleName string
	LastName   string
	PSN        id.PSN
	BirthDate  string // ISO 2006-01-02
	Address    string
}

// Record is the tagged variant for entity attributes: exactly one of
// Household or Individual is set, matching Type.
type Record struct {
	Type       id.EntityType
	Household  *HouseholdAttrs
	Individual *IndividualAttrs
}

// NormalizedRecord holds canonical comparison values plus derived blocking
// keys. It is owned by a single pipeline run and never persisted directly;
// registry entities keep a copy for candidate comparison.
type NormalizedRecord struct {
	Type id.EntityType

	// Canonical comparison values: upper-cased, diacritics folded,
	// punctuation stripped. Empty when the source field is absent.
	FullName        string
	FirstName       string
	LastName        string
	PSN             string
	BirthDate       string // ISO 2006-01-02
	BirthYear       int    // 0 when birth date absent
	Address         string
	HouseholdNumber string

	// DisplayName retains the original casing for presentation.
	DisplayName string

	// Phonetic codes for name fields (classic Soundex).
	LastNamePhonetic  string
	FirstNamePhonetic string

	// BlockingKeys are the cheap high-recall signatures this record hashes
	// into; derivation is deterministic given the canonical values.
	BlockingKeys []string
}

// IsEmpty reports whether the record carries no comparable identity data at
// all. Empty records yield zero candidates by definition.
func (n NormalizedRecord) IsEmpty() bool {
	return n.FullName == "" && n.PSN == "" && n.BirthDate == "" &&
		n.Address == "" && n.HouseholdNumber == ""
}

// Algorithm selects the similarity family used for a matching run.
type Algorithm string

const (
	AlgorithmExact    Algorithm = "EXACT"
	AlgorithmFuzzy    Algorithm = "FUZZY"
	AlgorithmPhonetic Algorithm = "PHONETIC"
)

// IsValid reports whether the algorithm is a known family.
func (a Algorithm) IsValid() bool {
	return a == AlgorithmExact || a == AlgorithmFuzzy || a == AlgorithmPhonetic
}

// FieldScore records one field comparison inside a candidate pairing.
type FieldScore struct {
	Field         string  `json:"fieldName"`
	IncomingValue string  `json:"newValue"`
	ExistingValue string  `json:"existingValue"`
	Score         float64 `json:"fieldSimilarity"`
}

// Candidate pairs an incoming record with one registry entity. Confidence is
// clamped to [0,1] and grows monotonically as more fields agree.
type Candidate struct {
	EntityID    id.EntityID
	Confidence  float64
	Algorithm   Algorithm
	FieldScores []FieldScore
}

// Decision classifies a candidate against the configured cut-points.
type Decision string

const (
	DecisionMatch         Decision = "MATCH"
	DecisionPossibleMatch Decision = "POSSIBLE_MATCH"
	DecisionNoMatch       Decision = "NO_MATCH"
)

// Resolution is the pipeline-level outcome for one incoming record after all
// candidates are classified.
type Resolution struct {
	Decision Decision
	// Best is set for MATCH: the winning entity.
	Best *Candidate
	// ForReview holds ranked POSSIBLE_MATCH candidates when no MATCH won.
	ForReview []Candidate
	DecidedAt time.Time
}
