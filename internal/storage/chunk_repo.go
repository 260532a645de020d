package storage

import (
	"context"
	"fmt"
	"time"

	"civiccite/internal/models"

	"github.com/pgvector/pgvector-go"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

const upsertChunkSQL = `
INSERT INTO chunks (chunk_id, ordinal, content, embedding, source_id, title, source_url, source_type,
                    language, region, topic, trust_tier, last_updated, ingest_time, extraction_method)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (chunk_id)
DO UPDATE SET
  ordinal = EXCLUDED.ordinal,
  content = EXCLUDED.content,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding),
  title = EXCLUDED.title,
  source_url = EXCLUDED.source_url,
  source_type = EXCLUDED.source_type,
  language = EXCLUDED.language,
  region = EXCLUDED.region,
  topic = EXCLUDED.topic,
  trust_tier = EXCLUDED.trust_tier,
  last_updated = EXCLUDED.last_updated,
  extraction_method = EXCLUDED.extraction_method`

// ReplaceDocumentChunks writes the current chunk set of one document in a
// single transaction. Existing rows keep their ingest_time and, when no new
// vector is supplied, their embedding. Chunks of the document that are not in
// the new set are deleted, so readers never see a mix of two versions.
func (r *ChunkRepo) ReplaceDocumentChunks(ctx context.Context, sourceID string, chunks []models.Chunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.SourceID != sourceID {
			return fmt.Errorf("chunk %s belongs to %s, not %s", c.ChunkID, c.SourceID, sourceID)
		}
		_, err := tx.Exec(ctx, upsertChunkSQL, chunkArgs(c)...)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
		ids = append(ids, c.ChunkID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1 AND NOT (chunk_id = ANY($2))`, sourceID, ids); err != nil {
		return fmt.Errorf("delete superseded chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func chunkArgs(c models.Chunk) []any {
	var embedding any
	if len(c.Embedding) > 0 {
		embedding = pgvector.NewVector(c.Embedding)
	}
	return []any{
		c.ChunkID, c.Ordinal, c.Content, embedding, c.SourceID, c.Title, c.URL, c.SourceType,
		c.Language, c.Region, c.Topic, int16(c.TrustTier), c.LastUpdated, c.IngestTime, c.ExtractionMethod,
	}
}

// ExistingChunkIDs returns the subset of ids already stored with an embedding.
func (r *ChunkRepo) ExistingChunkIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT chunk_id FROM chunks WHERE chunk_id = ANY($1) AND embedding IS NOT NULL`, ids)
	if err != nil {
		return nil, fmt.Errorf("list existing chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing chunk: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing chunks: %w", err)
	}
	return out, nil
}

// ChunkIngestTimes returns the stored ingest_time of each id that is already
// indexed, with or without an embedding.
func (r *ChunkRepo) ChunkIngestTimes(ctx context.Context, ids []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT chunk_id, ingest_time FROM chunks WHERE chunk_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list chunk ingest times: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan chunk ingest time: %w", err)
		}
		out[id] = at.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk ingest times: %w", err)
	}
	return out, nil
}
