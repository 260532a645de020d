package main

import (
	"context"
	"fmt"
	"time"

	"civiccite/internal/storage"

	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema and vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context(), a.cfg.EmbedDim); err != nil {
				return err
			}
			a.log.Info("schema migrated", "embed_dim", a.cfg.EmbedDim)
			cmd.Printf("schema ready (embedding dimension %d)\n", a.cfg.EmbedDim)
			return nil
		},
	}
}

func (a *app) openDB(ctx context.Context) (*storage.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, a.cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
