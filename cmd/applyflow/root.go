package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/compose"
	"github.com/jmorrell2146/applyflow/internal/config"
	"github.com/jmorrell2146/applyflow/internal/dispatch"
	"github.com/jmorrell2146/applyflow/internal/feed"
	"github.com/jmorrell2146/applyflow/internal/followup"
	"github.com/jmorrell2146/applyflow/internal/gate"
	"github.com/jmorrell2146/applyflow/internal/inbox"
	"github.com/jmorrell2146/applyflow/internal/intake"
	"github.com/jmorrell2146/applyflow/internal/logging"
	"github.com/jmorrell2146/applyflow/internal/mailer"
	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/ratelimit"
	"github.com/jmorrell2146/applyflow/internal/retry"
	"github.com/jmorrell2146/applyflow/internal/scheduler"
	"github.com/jmorrell2146/applyflow/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "applyflow",
	Short: "Application pipeline from job feed to follow-up",
	Long:  "ApplyFlow ingests job postings, scores them, gates them behind review, dispatches applications, and tracks bounces, responses, and follow-ups.",
	// Default to `run` so that `applyflow` with no args runs the daemon.
	// This keeps systemd unit files that invoke the binary directly working.
	RunE: runDaemon,
}

func init() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: APPLYFLOW_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > APPLYFLOW_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("APPLYFLOW_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Log, debug)
}

func buildMailer(cfg *config.Config, logger *slog.Logger) (model.Mailer, error) {
	var m model.Mailer
	switch cfg.Mailer.Type {
	case "dir":
		dir, err := mailer.NewDir(cfg.Mailer.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening mail directory: %w", err)
		}
		m = dir
	default:
		m = mailer.NewLog(logger)
	}

	if cfg.Mailer.MinSendDelay > 0 {
		limiter := ratelimit.NewSendLimiter(cfg.Mailer.MinSendDelay)
		m = ratelimit.NewMailer(m, limiter)
	}
	return m, nil
}

func buildFeeds(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []model.Feed {
	var feeds []model.Feed
	for _, fc := range cfg.Feeds {
		if !fc.Enabled {
			continue
		}

		var f model.Feed
		switch fc.Type {
		case "file":
			f = feed.NewJSONFile(fc.Name, fc.Path)
		case "greenhouse":
			f = retry.NewFeed(
				feed.NewGreenhouse(fc.BoardToken, fc.Company, httpClient),
				2, 5*time.Second, logger,
			)
		default:
			logger.Warn("unsupported feed type, skipping", "feed", fc.Name, "type", fc.Type)
			continue
		}
		feeds = append(feeds, f)
		logger.Info("registered feed", "name", fc.Name, "type", fc.Type)
	}
	return feeds
}

func buildDispatcher(cfg *config.Config, st model.RecordStore, m model.Mailer, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	renderer, err := compose.New(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return dispatch.New(st, renderer, m, cfg.Mailer.Timeout, logger), nil
}

// buildPipeline wires every component over the given store. The store
// is injected so the daemon and dry-run share the same wiring.
func buildPipeline(cfg *config.Config, st model.RecordStore, logger *slog.Logger) (*scheduler.Pipeline, error) {
	m, err := buildMailer(cfg, logger)
	if err != nil {
		return nil, err
	}
	dispatcher, err := buildDispatcher(cfg, st, m, logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	return &scheduler.Pipeline{
		Feeds:      buildFeeds(cfg, httpClient, logger),
		Intake:     intake.New(st, intake.NewScorer(cfg.Scoring), cfg.ReviewThreshold, logger),
		Gate:       gate.New(st, logger),
		Dispatcher: dispatcher,
		Bounces:    inbox.NewBounceMonitor(st, m, logger),
		Responses:  inbox.NewClassifier(st, m, logger),
		FollowUps:  followup.New(st, logger),

		Store: st,

		Lookback:       cfg.ScanLookback,
		AutoReview:     cfg.AutoReview.Enabled,
		AutoThreshold:  cfg.AutoReview.Threshold,
		AutoDispatch:   cfg.AutoDispatch,
		FollowUpMinAge: cfg.FollowUp.MinAge,
		FollowUpMax:    cfg.FollowUp.MaxCount,

		Logger: logger,
	}, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.StorePath, "error", err)
		return nil, err
	}
	return st, nil
}
