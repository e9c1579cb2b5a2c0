// Package domain holds typed identifiers shared across features.
//
// Wrapping uuid.UUID in distinct named types makes cross-assignment a compile
// error: an EntityID can never be passed where an IngestionID is expected.
// Parse functions enforce the invariant that IDs are valid, non-nil UUIDs at
// trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "registro/pkg/domain-errors"
)

// EntityID identifies a canonical registry entity (household or individual).
type EntityID uuid.UUID

// IngestionID identifies a single ingestion run or batch.
type IngestionID uuid.UUID

// ReviewID identifies an item on the human review queue.
type ReviewID uuid.UUID

func (id EntityID) String() string    { return uuid.UUID(id).String() }
func (id IngestionID) String() string { return uuid.UUID(id).String() }
func (id ReviewID) String() string    { return uuid.UUID(id).String() }

func (id EntityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id IngestionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReviewID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the canonical UUID string form on every wire format
// (JSON bodies, Redis values, map keys).

func (id EntityID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id IngestionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ReviewID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *EntityID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "entity_id is not a valid UUID")
	}
	*id = EntityID(u)
	return nil
}

func (id *IngestionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "ingestion_id is not a valid UUID")
	}
	*id = IngestionID(u)
	return nil
}

func (id *ReviewID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "review_id is not a valid UUID")
	}
	*id = ReviewID(u)
	return nil
}

// NewEntityID returns a fresh random entity identifier.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// NewIngestionID returns a fresh random ingestion identifier.
func NewIngestionID() IngestionID { return IngestionID(uuid.New()) }

// NewReviewID returns a fresh random review identifier.
func NewReviewID() ReviewID { return ReviewID(uuid.New()) }

// ParseEntityID parses and validates an entity ID string.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s, "entity_id")
	return EntityID(u), err
}

// ParseIngestionID parses and validates an ingestion ID string.
func ParseIngestionID(s string) (IngestionID, error) {
	u, err := parseUUID(s, "ingestion_id")
	return IngestionID(u), err
}

// ParseReviewID parses and validates a review ID string.
func ParseReviewID(s string) (ReviewID, error) {
	u, err := parseUUID(s, "review_id")
	return ReviewID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return u, nil
}
