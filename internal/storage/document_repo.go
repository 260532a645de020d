package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	DocumentProcessing = "processing"
	DocumentIndexed    = "indexed"
	DocumentSkipped    = "skipped"
	DocumentFailed     = "failed"
)

type DocumentRecord struct {
	SourceID         string
	URL              string
	Title            string
	Language         string
	Region           string
	Topic            string
	SourceType       string
	ExtractionMethod string
	Path             string
	Status           string
	FailReason       string
	ChunkCount       int
	FetchedAt        *time.Time
	LastUpdated      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) UpsertDocument(ctx context.Context, d DocumentRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (source_id, url, title, language, region, topic, source_type, extraction_method, path,
                       status, fail_reason, chunk_count, fetched_at, last_updated)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, $6, $7, $8, NULLIF($9,''), $10, NULLIF($11,''), $12, $13, $14)
ON CONFLICT (source_id)
DO UPDATE SET
  url = COALESCE(EXCLUDED.url, documents.url),
  title = COALESCE(EXCLUDED.title, documents.title),
  language = EXCLUDED.language,
  region = EXCLUDED.region,
  topic = EXCLUDED.topic,
  source_type = EXCLUDED.source_type,
  extraction_method = EXCLUDED.extraction_method,
  path = COALESCE(EXCLUDED.path, documents.path),
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  chunk_count = EXCLUDED.chunk_count,
  fetched_at = COALESCE(EXCLUDED.fetched_at, documents.fetched_at),
  last_updated = COALESCE(EXCLUDED.last_updated, documents.last_updated),
  updated_at = NOW()`,
		d.SourceID, d.URL, d.Title, d.Language, d.Region, d.Topic, d.SourceType, d.ExtractionMethod, d.Path,
		d.Status, d.FailReason, d.ChunkCount, d.FetchedAt, d.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, sourceID, status, failReason string, chunkCount int) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, fail_reason=NULLIF($3,''), chunk_count=$4, updated_at=NOW()
WHERE source_id=$1`, sourceID, status, failReason, chunkCount)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// ListDocuments returns documents in the given status, or all when status is empty.
func (r *DocumentRepo) ListDocuments(ctx context.Context, status string) ([]DocumentRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id, COALESCE(url,''), COALESCE(title,''), language, region, topic, source_type, extraction_method,
       COALESCE(path,''), status, COALESCE(fail_reason,''), chunk_count, fetched_at, last_updated, created_at, updated_at
FROM documents
WHERE $1 = '' OR status = $1
ORDER BY updated_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]DocumentRecord, 0)
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.SourceID, &d.URL, &d.Title, &d.Language, &d.Region, &d.Topic, &d.SourceType, &d.ExtractionMethod,
			&d.Path, &d.Status, &d.FailReason, &d.ChunkCount, &d.FetchedAt, &d.LastUpdated, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
