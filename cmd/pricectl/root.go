package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pricectl",
	Short: "Deterministic pricing and tax breakdowns",
	Long: `pricectl prices line items against a versioned tax rule table.

Rules come from RULES_FILE (a JSON document) or, when unset, from the tax_rules
table in DATABASE_URL. REDIS_URL enables the quote cache and rule reload
notifications. Logs go to stderr; stdout carries JSON results only.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "pricectl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("rules", "", "rule document to use instead of RULES_FILE / DATABASE_URL")
}
