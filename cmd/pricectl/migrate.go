package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/pricecore/internal/config"
	"github.com/noah-isme/pricecore/internal/rulestore"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert the tax_rules schema in DATABASE_URL",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		down := len(args) == 1 && args[0] == "down"
		if err := rulestore.Migrate(cfg.DatabaseURL, down); err != nil {
			return err
		}
		direction := "up"
		if down {
			direction = "down"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", direction)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
