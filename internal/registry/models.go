// Package registry is the system of record for resolved entities. Each entity
// carries its canonical attributes, the normalized form used for matching, and
// the provenance of every source record merged into it.
package registry

import (
	"time"

	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
)

// SourceRecord records where a merged contribution came from.
type SourceRecord struct {
	SourceSystem   string         `json:"sourceSystem"`
	SourceRecordID string         `json:"sourceRecordId"`
	IngestionID    id.IngestionID `json:"ingestionId"`
	SubmittedBy    string         `json:"submittedBy"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// Entity is a deduplicated person or household.
type Entity struct {
	ID            id.EntityID             `json:"entityId"`
	Type          id.EntityType           `json:"entityType"`
	Attributes    models.Record           `json:"attributes"`
	Normalized    models.NormalizedRecord `json:"-"`
	SourceRecords []SourceRecord          `json:"sourceRecords"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
	Version       int                     `json:"version"`
}

// NaturalKey returns the strong external identifier of the entity, or "" when
// it has none. Used to catch re-submissions of the same identifier without a
// similarity pass.
func (e Entity) NaturalKey() string {
	switch e.Type {
	case id.EntityTypeIndividual:
		if e.Normalized.PSN != "" {
			return "psn:" + e.Normalized.PSN
		}
	case id.EntityTypeHousehold:
		if e.Normalized.HouseholdNumber != "" {
			return "hh:" + e.Normalized.HouseholdNumber
		}
	}
	return ""
}
