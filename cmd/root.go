package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Insurance regulatory intelligence pipeline",
	Long:  "Scrapes SERFF rate filings, extracts rate manuals via Claude, tracks carrier appetite shifts, and prices PMI and title quotes from filed manuals.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
