package audit

import (
	"context"
	"path/filepath"

	"civiccite/internal/storage"
	"civiccite/internal/util"
)

// AuditInserter is implemented by storage.AuditRepo.
type AuditInserter interface {
	Insert(ctx context.Context, rec storage.QueryAuditRecord) error
}

type PostgresSink struct {
	repo AuditInserter
}

func NewPostgresSink(repo AuditInserter) *PostgresSink {
	return &PostgresSink{repo: repo}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	return s.repo.Insert(ctx, storage.QueryAuditRecord{
		RequestID:     rec.RequestID,
		SessionHash:   rec.SessionHash,
		Language:      rec.Language,
		Channel:       rec.Channel,
		Resolution:    rec.Resolution,
		GuidanceKey:   rec.GuidanceKey,
		UsedChunkIDs:  rec.UsedChunkIDs,
		TopSimilarity: rec.TopSimilarity,
		TimingsMS:     rec.TimingsMS,
		PolicyVersion: rec.PolicyVersion,
		CreatedAt:     rec.CreatedAt,
	})
}

// FileSink writes one JSON file per record under dir/{YYYY-MM-DD}/.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(_ context.Context, rec Record) error {
	day := rec.CreatedAt.UTC().Format("2006-01-02")
	return util.WriteJSONAtomic(filepath.Join(s.dir, day, filepath.Base(rec.RequestID)+".json"), rec)
}
