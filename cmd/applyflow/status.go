package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmorrell2146/applyflow/internal/model"
)

var (
	statusKey   string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state counts and recent transitions",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusKey, "key", "", "show the audit trail for one record")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max audit entries to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	counts, err := st.Counts()
	if err != nil {
		return err
	}

	fmt.Println("Pipeline:")
	total := 0
	for _, state := range model.AllStates {
		n := counts[state]
		total += n
		if n == 0 {
			continue
		}
		fmt.Printf("  %-22s %d\n", state, n)
	}
	fmt.Printf("  %-22s %d\n", "total", total)

	trail, err := st.AuditTrail(statusKey, statusLimit)
	if err != nil {
		return err
	}
	if len(trail) == 0 {
		return nil
	}

	fmt.Println("\nRecent transitions:")
	for _, e := range trail {
		fmt.Printf("  %s  %s  %s -> %s  (%s)\n",
			e.At.Format("2006-01-02 15:04"), e.IdentityKey, e.From, e.To, e.Cause)
	}
	return nil
}
