package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline daemon",
	Long:  "Run the full pipeline on an interval: ingest feeds, auto-review, dispatch, scan bounces and responses, emit follow-ups. Blocks until SIGINT/SIGTERM.",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	logger.Info("config loaded",
		"interval", cfg.PollingInterval.String(),
		"feeds", len(cfg.Feeds),
		"review_threshold", cfg.ReviewThreshold,
		"auto_review", cfg.AutoReview.Enabled,
		"mailer", cfg.Mailer.Type,
	)

	st, err := openStore(cfg, logger)
	if err != nil {
		os.Exit(1)
	}
	defer st.Close()

	pipeline, err := buildPipeline(cfg, st, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if len(pipeline.Feeds) == 0 {
		logger.Warn("no feeds enabled; daemon will only scan and follow up")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(pipeline, cfg.PollingInterval, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
