package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civiccite/internal/api"
	"civiccite/internal/audit"
	"civiccite/internal/config"
	"civiccite/internal/idempotency"
	"civiccite/internal/logger"
	"civiccite/internal/policy"
	"civiccite/internal/providers"
	"civiccite/internal/rag"
	"civiccite/internal/storage"
	"civiccite/internal/vector"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
	cancel()
	if err != nil {
		log.Fatal("connect postgres failed", "error", err)
	}
	defer db.Close()
	if ok, err := db.HasHNSWIndex(ctx); err != nil {
		log.Warn("could not inspect vector index", "error", err)
	} else if !ok {
		log.Warn("chunks table has no HNSW index; similarity search will scan", "hint", "run civiccite migrate")
	}

	policies, err := policy.NewStore(cfg.PolicyFile, cfg.Languages)
	if err != nil {
		log.Fatal("load policy failed", "error", err)
	}
	go reloadOnSIGHUP(ctx, policies, log)

	pm, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal("configure providers failed", "error", err)
	}
	embedder := providers.WrapWithCache(pm, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	retriever := rag.NewRetriever(embedder, vector.NewSearcher(db.Pool, vector.Options{IterativeScan: cfg.HNSWIterativeScan, MinEFSearch: cfg.HNSWEFSearch}), rag.RetrieverConfigFrom(cfg))

	emitter, err := audit.NewFromConfig(ctx, cfg, db, log)
	if err != nil {
		log.Fatal("configure audit sinks failed", "error", err)
	}
	engine := rag.NewEngine(policies, retriever, pm, emitter, log, rag.EngineConfigFrom(cfg))

	idem, closeIdem, err := idempotency.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal("configure idempotency store failed", "error", err)
	}
	defer func() { _ = closeIdem() }()

	deps := api.Deps{
		Engine:      engine,
		Policies:    policies,
		Idempotency: idem,
		DB:          db,
		Log:         log,
	}
	tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Namespace: cfg.TemporalNamespace, Logger: log})
	if err != nil {
		log.Warn("temporal unavailable; ingest endpoint disabled", "address", cfg.TemporalAddress, "error", err)
	} else {
		defer tc.Close()
		deps.Temporal = tc
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("civiccite api listening", "addr", cfg.APIAddr, "llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders, "audit_sinks", emitter.Sinks(), "policy_version", policies.Current().Version())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server failed", "error", err)
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDrain()
	if err := emitter.Close(drainCtx); err != nil {
		log.Warn("audit records still queued at exit", "error", err)
	}
	log.Info("civiccite api stopped")
}

func reloadOnSIGHUP(ctx context.Context, policies *policy.Store, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			p, err := policies.Reload()
			if err != nil {
				log.Error("policy reload failed; keeping previous policy", "error", err)
				continue
			}
			log.Info("policy reloaded", "version", p.Version())
		}
	}
}
