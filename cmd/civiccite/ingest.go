package main

import (
	"fmt"
	"path/filepath"
	"time"

	"civiccite/internal/activities"
	"civiccite/internal/storage"
	"civiccite/internal/util"
	"civiccite/internal/workflows"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"
)

func (a *app) ingestCmd() *cobra.Command {
	var dir, report string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a directory of documents in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			acts, err := activities.New(a.cfg, db, a.log)
			if err != nil {
				return err
			}
			found, err := acts.DiscoverDocumentsActivity(ctx, activities.DiscoverDocumentsInput{InputDir: dir})
			if err != nil {
				return err
			}

			ingestTime := time.Now().UTC()
			results := make([]activities.DocumentResult, len(found.Entries))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(1, a.cfg.IngestConcurrency))
			for i, e := range found.Entries {
				g.Go(func() error {
					res, err := acts.IngestDocument(gctx, dir, e, ingestTime)
					if err != nil {
						a.log.Error("document ingest failed", "path", e.Path, "error", err)
					}
					results[i] = res
					return gctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			counts := map[string]int{}
			for _, r := range results {
				counts[r.Status]++
			}
			if report != "" {
				if err := util.WriteJSONLinesAtomic(report, results); err != nil {
					return err
				}
			}
			cmd.Printf("%d documents: %d indexed, %d skipped, %d failed\n", len(results),
				counts[storage.DocumentIndexed], counts[storage.DocumentSkipped], counts[storage.DocumentFailed])
			if counts[storage.DocumentFailed] > 0 {
				return fmt.Errorf("%d documents failed", counts[storage.DocumentFailed])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "input directory (optionally with manifest.jsonl)")
	cmd.Flags().StringVar(&report, "report", "", "write one JSON line per document to this file")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func (a *app) enqueueCmd() *cobra.Command {
	var dir string
	var wait bool
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Start a corpus ingest workflow on Temporal",
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			c, err := client.Dial(client.Options{HostPort: a.cfg.TemporalAddress, Namespace: a.cfg.TemporalNamespace, Logger: a.log})
			if err != nil {
				return fmt.Errorf("connect temporal: %w", err)
			}
			defer c.Close()

			run, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        "ingest-" + uuid.NewString(),
				TaskQueue: a.cfg.TemporalTaskQueue,
			}, workflows.CorpusIngestWorkflow, workflows.NewCorpusIngestInput(a.cfg, abs))
			if err != nil {
				return fmt.Errorf("start ingest workflow: %w", err)
			}
			cmd.Printf("started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
			if !wait {
				return nil
			}
			var progress workflows.CorpusIngestProgress
			if err := run.Get(cmd.Context(), &progress); err != nil {
				return err
			}
			cmd.Printf("%d documents: %d indexed, %d skipped, %d failed\n", progress.Total, progress.Indexed, progress.Skipped, progress.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "input directory visible to the workers")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow and print its summary")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}
