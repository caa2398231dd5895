package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/followup"
)

var followUpsList bool

var followUpsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Send due follow-ups",
	Long:  "Finds sent applications that have aged past the follow-up window without a response and sends a follow-up to each. --list only prints what is due.",
	RunE:  runFollowUps,
}

func init() {
	followUpsCmd.Flags().BoolVar(&followUpsList, "list", false, "print due records without sending")
	rootCmd.AddCommand(followUpsCmd)
}

func runFollowUps(cmd *cobra.Command, args []string) error {
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

	if followUpsList {
		due, err := st.DueFollowUps(cfg.FollowUp.MinAge, cfg.FollowUp.MaxCount)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			fmt.Println("No follow-ups due.")
			return nil
		}
		for _, rec := range due {
			fmt.Printf("%s  sent %s  follow-ups %d/%d\n",
				rec.IdentityKey, rec.SentAt.Format("2006-01-02"),
				rec.FollowUpCount, cfg.FollowUp.MaxCount)
		}
		return nil
	}

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

	keys, err := followup.New(st, logger).DueFollowUps(cfg.FollowUp.MinAge, cfg.FollowUp.MaxCount)
	if err != nil {
		return err
	}
	sent := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		if err := d.SendFollowUp(ctx, key); err != nil {
			logger.Error("follow-up send failed", "key", key, "error", err)
			continue
		}
		sent++
	}
	logger.Info("follow-ups complete", "due", len(keys), "sent", sent)
	return nil
}
