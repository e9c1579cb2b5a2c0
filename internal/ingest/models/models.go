// Package models defines the ingestion domain: submission requests, per-batch
// accounting, and the persisted ingestion result callers poll for status.
package models

import (
	"time"

	"registro/internal/ingest/validate"
	id "registro/pkg/domain"
)

// Known source systems. The vocabulary is open: new systems ingest without a
// code change, these constants just name the ones wired today.
const (
	SourceListahanan  = "LISTAHANAN"
	SourceIRegistro   = "I_REGISTRO"
	SourceManualEntry = "MANUAL_ENTRY"
)

// MaxBatchIDLength mirrors the persistence column bound; a longer identifier
// fails the whole batch before any record is processed.
const MaxBatchIDLength = 100

// Status is the batch-level outcome.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusPartial    Status = "PARTIAL"
	StatusFailed     Status = "FAILED"
)

// Request is one record submission after wire decoding.
type Request struct {
	SourceSystem   string
	DataType       id.EntityType
	SubmittedBy    string
	SourceRecordID string
	Payload        map[string]any
	// ValidateOnly runs the validator and stops: nothing is matched or
	// persisted.
	ValidateOnly bool
	// SkipDuplicateCheck commits the record as a new entity without a
	// matching pass. Natural-key uniqueness is still enforced.
	SkipDuplicateCheck bool
}

// RecordError ties a failed record back to its batch position.
type RecordError struct {
	RecordIndex int                   `json:"recordIndex"`
	Fields      []validate.FieldError `json:"fields,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// Ingestion is the persisted accounting for one submission, single or batch.
// Counts are final once Status leaves PROCESSING; closure is terminal.
type Ingestion struct {
	ID                id.IngestionID `json:"ingestionId"`
	BatchID           string         `json:"batchId,omitempty"`
	SourceSystem      string         `json:"sourceSystem"`
	SubmittedBy       string         `json:"submittedBy"`
	Status            Status         `json:"status"`
	TotalRecords      int            `json:"totalRecords"`
	SuccessfulRecords int            `json:"successfulRecords"`
	FailedRecords     int            `json:"failedRecords"`
	PendingReview     int            `json:"pendingReview"`
	ValidationErrors  []RecordError  `json:"validationErrors,omitempty"`
	SubmittedAt       time.Time      `json:"submittedAt"`
	ProcessedAt       time.Time      `json:"processedAt"`
}

// Closed reports whether the ingestion reached a terminal status.
func (i Ingestion) Closed() bool {
	return i.Status != StatusProcessing
}
