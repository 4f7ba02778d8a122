package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hermes-intel/hermes/internal/tasks"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse newly scraped filing documents",
	Long:  "Claims a batch of unparsed documents and runs the Claude extraction pipeline over them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Registry.Run(ctx, tasks.TaskParseNewFilings)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, result)
	},
}

var parseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize recent parse activity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		days, _ := cmd.Flags().GetInt("days")
		since := time.Now().AddDate(0, 0, -days)

		counts, err := env.Store.ParseStatusCounts(ctx, since)
		if err != nil {
			return err
		}
		backlog, err := env.Store.UnparsedBacklog(ctx)
		if err != nil {
			return err
		}
		cost, err := env.Store.ParseCostSince(ctx, since)
		if err != nil {
			return err
		}

		return printJSON(os.Stdout, map[string]any{
			"window_days": days,
			"by_status":   counts,
			"backlog":     backlog,
			"cost_usd":    cost,
		})
	},
}

func init() {
	parseStatusCmd.Flags().Int("days", 7, "trailing window in days")
	parseCmd.AddCommand(parseStatusCmd)
	rootCmd.AddCommand(parseCmd)
}
