// Command civiccite is the operator CLI: schema migration, local or queued
// ingestion, and policy checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"civiccite/internal/config"
	"civiccite/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type app struct {
	cfg config.Config
	log *logger.Logger
}

func main() {
	var envFile string
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "civiccite",
		Short:         "civiccite retrieval and citation tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)
			a.cfg = config.Load()
			log, err := logger.New(a.cfg.LogMode, a.cfg.LogHashSalt)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.log = log
			return a.cfg.Validate()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading CIVICCITE_* variables")
	rootCmd.AddCommand(a.migrateCmd(), a.ingestCmd(), a.enqueueCmd(), a.policyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if a.log != nil {
		a.log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
