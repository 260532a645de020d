package audit

import (
	"context"

	"civiccite/internal/logger"
)

type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, rec Record) error {
	s.log.Info("query audit",
		"request_id", rec.RequestID,
		"session_hash", rec.SessionHash,
		"language", rec.Language,
		"channel", rec.Channel,
		"resolution", rec.Resolution,
		"guidance_key", rec.GuidanceKey,
		"used_chunk_ids", rec.UsedChunkIDs,
		"top_similarity", rec.TopSimilarity,
		"timing_ms", rec.TimingsMS,
		"policy_version", rec.PolicyVersion,
	)
	return nil
}
