package main

import (
	"context"
	"time"

	"civiccite/internal/activities"
	"civiccite/internal/config"
	"civiccite/internal/logger"
	"civiccite/internal/storage"
	"civiccite/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode, cfg.LogHashSalt)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Namespace: cfg.TemporalNamespace, Logger: log})
	if err != nil {
		log.Fatal("connect temporal failed", "address", cfg.TemporalAddress, "error", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{MaxConcurrentActivityExecutionSize: cfg.IngestConcurrency * 4})
	workflows.Register(w)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("connect postgres failed", "error", err)
	}
	defer db.Close()
	a, err := activities.New(cfg, db, log)
	if err != nil {
		log.Fatal("configure activities failed", "error", err)
	}
	activities.Register(w, a)

	log.Info("civiccite worker listening", "address", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue,
		"embed_providers", cfg.EmbedProviders, "embed_dim", cfg.EmbedDim)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", "error", err)
	}
}
