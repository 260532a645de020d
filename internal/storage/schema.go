package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// SchemaSQL renders the DDL for the given embedding dimension.
func SchemaSQL(dim int) string {
	return strings.ReplaceAll(schemaSQL, "{{DIM}}", strconv.Itoa(dim))
}

// Migrate creates the tables and indexes if they are missing. It is safe to
// run on every start.
func (d *DB) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if _, err := d.Pool.Exec(ctx, SchemaSQL(dim)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HasHNSWIndex reports whether the chunk embedding column has an HNSW index.
func (d *DB) HasHNSWIndex(ctx context.Context) (bool, error) {
	var ok bool
	err := d.Pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM pg_indexes
  WHERE tablename = 'chunks' AND indexdef ILIKE '%using hnsw%'
)`).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check hnsw index: %w", err)
	}
	return ok, nil
}
