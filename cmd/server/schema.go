package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"registro/internal/ingest/batch"
	"registro/internal/registry"
)

const schemaTimeout = 30 * time.Second

// applySchema creates the tables on startup. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so repeated boots are safe.
func applySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	for _, schema := range []string{registry.Schema, batch.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
