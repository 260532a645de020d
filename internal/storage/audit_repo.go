package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type QueryAuditRecord struct {
	RequestID     string
	SessionHash   string
	Language      string
	Channel       string
	Resolution    string
	GuidanceKey   string
	UsedChunkIDs  []string
	TopSimilarity float64
	TimingsMS     map[string]int64
	PolicyVersion string
	CreatedAt     time.Time
}

type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert stores one query audit row. A replayed request id keeps the first row.
func (r *AuditRepo) Insert(ctx context.Context, rec QueryAuditRecord) error {
	timings, err := json.Marshal(rec.TimingsMS)
	if err != nil {
		return fmt.Errorf("encode audit timings: %w", err)
	}
	if rec.UsedChunkIDs == nil {
		rec.UsedChunkIDs = []string{}
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO query_audits(request_id, session_hash, language, channel, resolution, guidance_key, used_chunk_ids,
                         top_similarity, timings_ms, policy_version, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9::jsonb, $10, $11)
ON CONFLICT (request_id) DO NOTHING`,
		rec.RequestID, rec.SessionHash, rec.Language, rec.Channel, rec.Resolution, rec.GuidanceKey, rec.UsedChunkIDs,
		rec.TopSimilarity, string(timings), rec.PolicyVersion, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query audit: %w", err)
	}
	return nil
}
