package audit

import (
	"context"
	"fmt"
	"strings"

	"civiccite/internal/config"
	"civiccite/internal/logger"
	"civiccite/internal/storage"
)

// NewFromConfig builds the emitter for the pipe-separated sink list in
// cfg.AuditSinks (log|s3|postgres|file). The postgres sink needs db.
func NewFromConfig(ctx context.Context, cfg config.Config, db *storage.DB, log *logger.Logger) (*Emitter, error) {
	var sinks []Sink
	seen := map[string]bool{}
	for _, name := range strings.Split(cfg.AuditSinks, "|") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "log":
			sinks = append(sinks, NewLogSink(log))
		case "s3":
			s, err := NewS3SinkFromConfig(ctx, S3Config{
				Bucket:    cfg.AuditS3Bucket,
				Prefix:    cfg.AuditS3Prefix,
				Region:    cfg.AuditS3Region,
				Endpoint:  cfg.AuditS3Endpoint,
				AccessKey: cfg.AuditS3AccessKey,
				SecretKey: cfg.AuditS3SecretKey,
				PathStyle: cfg.AuditS3PathStyle,
			})
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case "postgres":
			if db == nil {
				return nil, fmt.Errorf("postgres audit sink requires a database")
			}
			sinks = append(sinks, NewPostgresSink(storage.NewAuditRepo(db)))
		case "file":
			sinks = append(sinks, NewFileSink(cfg.AuditFileDir))
		default:
			return nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}
	return NewEmitter(log, cfg.AuditTimeout, sinks...).Async(cfg.AuditQueueSize, cfg.AuditWorkers), nil
}
