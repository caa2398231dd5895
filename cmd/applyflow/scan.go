package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/inbox"
)

var scanSince time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for bounces and responses",
	Long:  "Polls the mail capability once for bounce notices and inbound replies, reconciles them against sent records, and reports what changed. Already-processed notices are skipped.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanSince, "since", 0, "lookback window (default: scan_lookback from config)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	since := scanSince
	if since == 0 {
		since = cfg.ScanLookback
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		os.Exit(1)
	}
	defer st.Close()

	m, err := buildMailer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bounces, err := inbox.NewBounceMonitor(st, m, logger).ScanBounces(ctx, since)
	if err != nil {
		return err
	}
	for _, ev := range bounces {
		logger.Info("bounce recorded",
			"key", ev.IdentityKey,
			"recipient", ev.Recipient,
			"reason", ev.Reason,
			"cleared_response", ev.ClearedResponse,
		)
	}

	responses, err := inbox.NewClassifier(st, m, logger).ScanResponses(ctx, since)
	if err != nil {
		return err
	}
	for _, resp := range responses {
		logger.Info("response classified",
			"key", resp.IdentityKey,
			"type", resp.Type,
			"from", resp.From,
			"escalated", resp.Escalated,
		)
	}

	logger.Info("scan complete",
		"since", since.String(),
		"bounces", len(bounces),
		"responses", len(responses),
	)
	return nil
}
