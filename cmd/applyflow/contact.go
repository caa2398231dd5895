package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var contactVerified bool

var contactCmd = &cobra.Command{
	Use:   "contact <identity-key> <email>",
	Short: "Attach a recipient address to a record",
	Long:  "Records the outreach address for a record. Mark it --verified once the address is confirmed deliverable; unverified contacts block the auto-review policy.",
	Args:  cobra.ExactArgs(2),
	RunE:  runContact,
}

func init() {
	contactCmd.Flags().BoolVar(&contactVerified, "verified", false, "mark the address as verified")
	rootCmd.AddCommand(contactCmd)
}

func runContact(cmd *cobra.Command, args []string) error {
	key, email := args[0], strings.TrimSpace(args[1])
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%q does not look like an email address", email)
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

	if err := st.SetRecipient(key, email, contactVerified); err != nil {
		return err
	}
	logger.Info("contact recorded", "key", key, "email", email, "verified", contactVerified)
	return nil
}
