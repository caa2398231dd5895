package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/feed"
	"github.com/jmorrell2146/applyflow/internal/intake"
	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/store"
)

var (
	ingestFile   string
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch feeds once and ingest postings",
	Long:  "One-shot intake: fetches every enabled feed (or a single file with --file), scores the postings, and records them. --dry-run scores against an in-memory store and persists nothing.",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "ingest a single JSON file instead of the configured feeds")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "score and report, but persist nothing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	var st model.RecordStore
	if ingestDryRun {
		logger.Info("dry-run mode enabled, nothing will be persisted")
		st = store.NewMemoryStore()
	} else {
		sqlStore, err := openStore(cfg, logger)
		if err != nil {
			os.Exit(1)
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	var feeds []model.Feed
	if ingestFile != "" {
		feeds = []model.Feed{feed.NewJSONFile("file", ingestFile)}
	} else {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		feeds = buildFeeds(cfg, httpClient, logger)
	}
	if len(feeds) == 0 {
		logger.Error("no feeds to ingest")
		os.Exit(1)
	}

	in := intake.New(st, intake.NewScorer(cfg.Scoring), cfg.ReviewThreshold, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, f := range feeds {
		raws, err := f.Fetch(ctx)
		if err != nil {
			logger.Error("feed fetch failed", "feed", f.Name(), "error", err)
			continue
		}
		res, err := in.Ingest(ctx, raws)
		if err != nil {
			logger.Error("ingest failed", "feed", f.Name(), "error", err)
			continue
		}
		logger.Info("feed ingested",
			"feed", f.Name(),
			"inserted", res.Inserted,
			"updated", res.Updated,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return nil
}
