package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"civiccite/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Filters narrow the candidate set before similarity ordering. An empty
// Region or Topic disables that filter. Chunks without a region are
// nationwide and match every region.
type Filters struct {
	Language string
	Region   string
	Topic    string
}

// Beginner opens the read transaction a search runs in. *pgxpool.Pool
// satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options tune the HNSW scan so filters are applied before the candidate
// budget is spent. MinEFSearch is raised to the candidate count when that is
// larger. IterativeScan needs pgvector 0.8 or later.
type Options struct {
	IterativeScan bool
	MinEFSearch   int
}

const maxEFSearch = 1000

type Searcher struct {
	db   Beginner
	opts Options
}

func NewSearcher(db Beginner, opts Options) *Searcher {
	return &Searcher{db: db, opts: opts}
}

const candidateSQL = `
WITH nearest AS MATERIALIZED (
  SELECT chunk_id, ordinal, content, source_id, title, source_url, source_type, language, region, topic,
         trust_tier, last_updated, ingest_time, extraction_method,
         embedding <=> $1 AS distance
  FROM chunks
  WHERE embedding IS NOT NULL
    AND language = $2
    AND ($3 = '' OR region = '' OR region = $3)
    AND ($4 = '' OR topic = $4)
  ORDER BY embedding <=> $1
  LIMIT $5
)
SELECT chunk_id, ordinal, content, source_id, title, source_url, source_type, language, region, topic,
       trust_tier, last_updated, ingest_time, extraction_method, 1 - distance AS score
FROM nearest
ORDER BY distance, chunk_id`

// efSearch is the hnsw.ef_search for a search of n candidates.
func (s *Searcher) efSearch(n int) int {
	ef := max(n, s.opts.MinEFSearch)
	return min(ef, maxEFSearch)
}

// SearchCandidates returns up to n chunks nearest to queryVec by cosine
// distance among those matching f. Score is 1 - distance. The scan settings
// are local to the search transaction.
func (s *Searcher) SearchCandidates(ctx context.Context, queryVec []float32, n int, f Filters) ([]models.ScoredChunk, error) {
	if n <= 0 {
		n = 50
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin search tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(s.efSearch(n))); err != nil {
		return nil, fmt.Errorf("set hnsw.ef_search: %w", err)
	}
	if s.opts.IterativeScan {
		if _, err := tx.Exec(ctx, "SET LOCAL hnsw.iterative_scan = relaxed_order"); err != nil {
			return nil, fmt.Errorf("set hnsw.iterative_scan: %w", err)
		}
	}

	args := []any{
		pgvector.NewVector(queryVec),
		strings.ToLower(strings.TrimSpace(f.Language)),
		strings.ToLower(strings.TrimSpace(f.Region)),
		strings.ToLower(strings.TrimSpace(f.Topic)),
		n,
	}
	rows, err := tx.Query(ctx, candidateSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, n)
	for rows.Next() {
		var r models.ScoredChunk
		var tier int16
		c := &r.Chunk
		if err := rows.Scan(&c.ChunkID, &c.Ordinal, &c.Content, &c.SourceID, &c.Title, &c.URL, &c.SourceType, &c.Language,
			&c.Region, &c.Topic, &tier, &c.LastUpdated, &c.IngestTime, &c.ExtractionMethod, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		c.TrustTier = models.TrustTier(tier)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit search tx: %w", err)
	}
	return results, nil
}

// Retryable reports whether a failed search may succeed when repeated: lost
// connections, deadlines, serialization conflicts and server overload.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P03":
			return true
		}
	}
	return false
}
