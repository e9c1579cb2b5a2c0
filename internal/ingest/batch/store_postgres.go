package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"registro/internal/ingest/models"
	id "registro/pkg/domain"
	"registro/pkg/platform/sentinel"
	"registro/pkg/platform/tx"
)

// PostgresStore persists ingestion accounting in the ingestion_batches table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS ingestion_batches (
	ingestion_id       UUID PRIMARY KEY,
	batch_id           VARCHAR(100),
	source_system      TEXT NOT NULL,
	submitted_by       TEXT NOT NULL,
	status             TEXT NOT NULL,
	total_records      INT NOT NULL,
	successful_records INT NOT NULL,
	failed_records     INT NOT NULL,
	pending_review     INT NOT NULL,
	validation_errors  JSONB NOT NULL DEFAULT '[]',
	submitted_at       TIMESTAMPTZ NOT NULL,
	processed_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ingestion_batches_batch_id ON ingestion_batches (batch_id);
`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, ingestion models.Ingestion) error {
	validationErrors, err := json.Marshal(ingestion.ValidationErrors)
	if err != nil {
		return fmt.Errorf("encode validation errors: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO ingestion_batches
			(ingestion_id, batch_id, source_system, submitted_by, status,
			 total_records, successful_records, failed_records, pending_review,
			 validation_errors, submitted_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ingestion.ID.String(), ingestion.BatchID, ingestion.SourceSystem,
		ingestion.SubmittedBy, string(ingestion.Status),
		ingestion.TotalRecords, ingestion.SuccessfulRecords, ingestion.FailedRecords,
		ingestion.PendingReview, validationErrors, ingestion.SubmittedAt, ingestion.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ingestion: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, ingestion models.Ingestion) error {
	validationErrors, err := json.Marshal(ingestion.ValidationErrors)
	if err != nil {
		return fmt.Errorf("encode validation errors: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE ingestion_batches
		SET status = $2, total_records = $3, successful_records = $4,
		    failed_records = $5, pending_review = $6, validation_errors = $7,
		    processed_at = $8
		WHERE ingestion_id = $1 AND status = $9`,
		ingestion.ID.String(), string(ingestion.Status),
		ingestion.TotalRecords, ingestion.SuccessfulRecords, ingestion.FailedRecords,
		ingestion.PendingReview, validationErrors, ingestion.ProcessedAt,
		string(models.StatusProcessing))
	if err != nil {
		return fmt.Errorf("update ingestion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ingestion: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM ingestion_batches WHERE ingestion_id = $1)`,
			ingestion.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("update ingestion: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		// Closure is terminal.
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ingestionID id.IngestionID) (models.Ingestion, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT ingestion_id, batch_id, source_system, submitted_by, status,
		       total_records, successful_records, failed_records, pending_review,
		       validation_errors, submitted_at, processed_at
		FROM ingestion_batches WHERE ingestion_id = $1`,
		ingestionID.String())

	var (
		ingestion        models.Ingestion
		rawID            string
		rawStatus        string
		validationErrors []byte
	)
	err := row.Scan(&rawID, &ingestion.BatchID, &ingestion.SourceSystem,
		&ingestion.SubmittedBy, &rawStatus,
		&ingestion.TotalRecords, &ingestion.SuccessfulRecords, &ingestion.FailedRecords,
		&ingestion.PendingReview, &validationErrors, &ingestion.SubmittedAt, &ingestion.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ingestion{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Ingestion{}, fmt.Errorf("scan ingestion: %w", err)
	}
	if ingestion.ID, err = id.ParseIngestionID(rawID); err != nil {
		return models.Ingestion{}, err
	}
	ingestion.Status = models.Status(rawStatus)
	if err := json.Unmarshal(validationErrors, &ingestion.ValidationErrors); err != nil {
		return models.Ingestion{}, fmt.Errorf("decode validation errors: %w", err)
	}
	return ingestion, nil
}
