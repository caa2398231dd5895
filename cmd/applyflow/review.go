package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/gate"
	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/reviewtui"
)

var (
	reviewAuto    bool
	reviewApprove string
	reviewReject  string
	reviewNote    string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the approval queue",
	Long:  "Interactive review of pending records (TUI). Use --approve/--reject for a single decision from the command line, or --auto to apply the deterministic approval policy.",
	RunE:  runReview,
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewAuto, "auto", false, "apply the auto-review policy instead of the TUI")
	reviewCmd.Flags().StringVar(&reviewApprove, "approve", "", "approve a single record by identity key")
	reviewCmd.Flags().StringVar(&reviewReject, "reject", "", "reject a single record by identity key")
	reviewCmd.Flags().StringVar(&reviewNote, "note", "", "reviewer note recorded in the audit log")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	if reviewApprove != "" && reviewReject != "" {
		return fmt.Errorf("--approve and --reject are mutually exclusive")
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

	g := gate.New(st, logger)

	switch {
	case reviewApprove != "":
		return g.Review(reviewApprove, gate.Approve, reviewNote)
	case reviewReject != "":
		return g.Review(reviewReject, gate.Reject, reviewNote)
	case reviewAuto:
		n, err := g.AutoReview(cfg.AutoReview.Threshold)
		if err != nil {
			return err
		}
		logger.Info("auto review complete", "approved", n)
		return nil
	}

	pending, err := st.List(model.StatePendingReview)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Nothing pending review.")
		return nil
	}

	records := make([]model.JobRecord, len(pending))
	for i, rec := range pending {
		records[i] = *rec
	}

	approved, rejected, err := reviewtui.Run(g, records)
	if err != nil {
		return err
	}
	fmt.Printf("Review session: %d approved, %d rejected, %d left pending.\n",
		approved, rejected, len(records)-approved-rejected)
	return nil
}
