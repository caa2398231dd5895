package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/model"
)

var (
	dispatchAll   bool
	dispatchRetry bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [identity-key]",
	Short: "Send approved applications",
	Long:  "Dispatches one approved record by key, or every approved record with a known recipient with --all. --retry re-queues a failed send before dispatching.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().BoolVar(&dispatchAll, "all", false, "dispatch every approved record with a recipient")
	dispatchCmd.Flags().BoolVar(&dispatchRetry, "retry", false, "re-queue a send_failed record before dispatching")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if dispatchAll == (len(args) == 1) {
		return fmt.Errorf("provide exactly one identity key, or --all")
	}
	if dispatchRetry && dispatchAll {
		return fmt.Errorf("--retry needs a single identity key")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	st, err := openStore(cfg, logger)
	if err != nil {
		os.Exit(1)
	}
	defer st.Close()

	m, err := buildMailer(cfg, logger)
	if err != nil {
		return err
	}
	d, err := buildDispatcher(cfg, st, m, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dispatchAll {
		approved, err := st.List(model.StateApproved)
		if err != nil {
			return err
		}
		sent := 0
		for _, rec := range approved {
			if ctx.Err() != nil {
				break
			}
			if rec.RecipientEmail == "" {
				logger.Warn("skipping record without recipient", "key", rec.IdentityKey)
				continue
			}
			res, err := d.Dispatch(ctx, rec.IdentityKey)
			if err != nil {
				logger.Error("dispatch failed", "key", rec.IdentityKey, "error", err)
				continue
			}
			if res.Sent {
				sent++
			}
		}
		logger.Info("dispatch complete", "approved", len(approved), "sent", sent)
		return nil
	}

	key := args[0]
	if dispatchRetry {
		if err := d.Retry(key); err != nil {
			return err
		}
		logger.Info("record re-queued for dispatch", "key", key)
	}

	res, err := d.Dispatch(ctx, key)
	if err != nil {
		return err
	}
	if !res.Sent {
		return fmt.Errorf("send failed: %s", res.FailureReason)
	}
	logger.Info("application sent",
		"key", key,
		"message_id", res.MessageID,
		"resume_variant", res.ResumeVariant,
	)
	return nil
}
