package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"registro/pkg/platform/sentinel"
	"registro/pkg/platform/tx"

	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
)

// PostgresStore persists entities in the registry_entities table. Attributes,
// normalized form, and provenance travel as JSONB; the natural key and the
// source record pairs get their own unique indexes so conflict detection is
// enforced by the database, not just application code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is applied by migrations in production and by the container helper in
// integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_entities (
	entity_id    UUID PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	natural_key  TEXT,
	attributes   JSONB NOT NULL,
	normalized   JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	version      INT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS registry_entities_natural_key
	ON registry_entities (natural_key) WHERE natural_key <> '';

CREATE TABLE IF NOT EXISTS registry_source_records (
	source_system    TEXT NOT NULL,
	source_record_id TEXT NOT NULL,
	entity_id        UUID NOT NULL REFERENCES registry_entities (entity_id),
	ingestion_id     UUID NOT NULL,
	submitted_by     TEXT NOT NULL,
	received_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_system, source_record_id)
);
CREATE INDEX IF NOT EXISTS registry_source_records_entity
	ON registry_source_records (entity_id);
`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, entity Entity) error {
	attributes, normalized, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO registry_entities (entity_id, entity_type, natural_key, attributes, normalized, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entity.ID.String(), string(entity.Type), entity.NaturalKey(),
		attributes, normalized, entity.CreatedAt, entity.UpdatedAt, entity.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert entity: %w", err)
	}
	return s.upsertSourceRecords(ctx, entity)
}

func (s *PostgresStore) Update(ctx context.Context, entity Entity) error {
	attributes, normalized, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE registry_entities
		SET natural_key = $2, attributes = $3, normalized = $4, updated_at = $5, version = $6
		WHERE entity_id = $1 AND version = $6 - 1`,
		entity.ID.String(), entity.NaturalKey(), attributes, normalized, entity.UpdatedAt, entity.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM registry_entities WHERE entity_id = $1)`,
			entity.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return s.upsertSourceRecords(ctx, entity)
}

func (s *PostgresStore) upsertSourceRecords(ctx context.Context, entity Entity) error {
	for _, src := range entity.SourceRecords {
		if src.SourceSystem == "" || src.SourceRecordID == "" {
			continue
		}
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO registry_source_records (source_system, source_record_id, entity_id, ingestion_id, submitted_by, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (source_system, source_record_id) DO UPDATE SET entity_id = EXCLUDED.entity_id`,
			src.SourceSystem, src.SourceRecordID, entity.ID.String(),
			src.IngestionID.String(), src.SubmittedBy, src.ReceivedAt)
		if err != nil {
			return fmt.Errorf("upsert source record: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, entityID id.EntityID) (Entity, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectEntity+` WHERE e.entity_id = $1`, entityID.String())
	entity, err := scanEntity(row)
	if err != nil {
		return Entity{}, err
	}
	return s.attachSourceRecords(ctx, entity)
}

func (s *PostgresStore) GetMany(ctx context.Context, entityIDs []id.EntityID) ([]Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	raw := make([]string, len(entityIDs))
	for i, entityID := range entityIDs {
		raw[i] = entityID.String()
	}
	rows, err := s.q(ctx).QueryContext(ctx, selectEntity+` WHERE e.entity_id = ANY($1)`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindByNaturalKey(ctx context.Context, key string) (Entity, error) {
	if key == "" {
		return Entity{}, sentinel.ErrNotFound
	}
	row := s.q(ctx).QueryRowContext(ctx, selectEntity+` WHERE e.natural_key = $1`, key)
	entity, err := scanEntity(row)
	if err != nil {
		return Entity{}, err
	}
	return s.attachSourceRecords(ctx, entity)
}

func (s *PostgresStore) FindBySourceRecord(ctx context.Context, sourceSystem, sourceRecordID string) (Entity, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectEntity+`
		JOIN registry_source_records sr ON sr.entity_id = e.entity_id
		WHERE sr.source_system = $1 AND sr.source_record_id = $2`,
		sourceSystem, sourceRecordID)
	entity, err := scanEntity(row)
	if err != nil {
		return Entity{}, err
	}
	return s.attachSourceRecords(ctx, entity)
}

func (s *PostgresStore) ForEach(ctx context.Context, fn func(Entity) error) error {
	rows, err := s.q(ctx).QueryContext(ctx, selectEntity)
	if err != nil {
		return fmt.Errorf("scan entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return err
		}
		if err := fn(entity); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_entities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

const selectEntity = `
	SELECT e.entity_id, e.entity_type, e.attributes, e.normalized, e.created_at, e.updated_at, e.version
	FROM registry_entities e`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (Entity, error) {
	var (
		entity     Entity
		rawID      string
		rawType    string
		attributes []byte
		normalized []byte
	)
	err := row.Scan(&rawID, &rawType, &attributes, &normalized, &entity.CreatedAt, &entity.UpdatedAt, &entity.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	entity.ID, err = id.ParseEntityID(rawID)
	if err != nil {
		return Entity{}, err
	}
	entity.Type = id.EntityType(rawType)
	if err := json.Unmarshal(attributes, &entity.Attributes); err != nil {
		return Entity{}, fmt.Errorf("decode attributes: %w", err)
	}
	if err := json.Unmarshal(normalized, &entity.Normalized); err != nil {
		return Entity{}, fmt.Errorf("decode normalized form: %w", err)
	}
	return entity, nil
}

func (s *PostgresStore) attachSourceRecords(ctx context.Context, entity Entity) (Entity, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT source_system, source_record_id, ingestion_id, submitted_by, received_at
		FROM registry_source_records WHERE entity_id = $1 ORDER BY received_at`,
		entity.ID.String())
	if err != nil {
		return Entity{}, fmt.Errorf("load source records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			src   SourceRecord
			rawID string
		)
		if err := rows.Scan(&src.SourceSystem, &src.SourceRecordID, &rawID, &src.SubmittedBy, &src.ReceivedAt); err != nil {
			return Entity{}, fmt.Errorf("scan source record: %w", err)
		}
		if src.IngestionID, err = id.ParseIngestionID(rawID); err != nil {
			return Entity{}, err
		}
		entity.SourceRecords = append(entity.SourceRecords, src)
	}
	return entity, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func marshalEntity(entity Entity) (attributes, normalized []byte, err error) {
	if entity.Attributes.Type == "" {
		entity.Attributes = models.Record{Type: entity.Type}
	}
	attributes, err = json.Marshal(entity.Attributes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attributes: %w", err)
	}
	normalized, err = json.Marshal(entity.Normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("encode normalized form: %w", err)
	}
	return attributes, normalized, nil
}
