package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hermes-intel/hermes/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [state...]",
	Short: "Scrape the SERFF portal",
	Long:  "Runs the listing and detail passes. With no arguments every enabled state is scraped; otherwise only the named states.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var summaries []scrape.Summary
		if len(args) == 0 {
			summaries, err = env.Scraper.RunAll(ctx)
		} else {
			if err := env.Browser.Start(); err != nil {
				return err
			}
			defer env.Browser.Close()
			for _, state := range args {
				summary, runErr := env.Scraper.RunState(ctx, strings.ToUpper(state))
				if runErr != nil {
					summary.Errors = append(summary.Errors, runErr.Error())
				}
				summaries = append(summaries, summary)
				if ctx.Err() != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}

		formatScrapeSummaries(summaries)
		return nil
	},
}

func formatScrapeSummaries(summaries []scrape.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(os.Stderr, "No enabled states.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tFOUND\tDETAILS\tDOCS\tSKIPPED\tERRORS")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			s.State, s.FilingsFound, s.Details, s.Documents, len(s.Skipped), len(s.Errors))
	}
	w.Flush()
	for _, s := range summaries {
		for _, e := range s.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", s.State, e)
		}
	}
}

var scrapeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent scrape runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		logs, err := env.Store.RecentScrapeLogs(ctx, limit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No scrape runs recorded.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSTATUS\tSTARTED\tFOUND\tSCRAPED\tDOCS\tERRORS")
		for _, l := range logs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				l.ID, l.State, l.Status, l.StartedAt.Format("2006-01-02 15:04"),
				l.FilingsFound, l.FilingsScraped, l.DocsDownloaded, len(l.Errors))
		}
		w.Flush()
		return nil
	},
}

// -- states --

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Manage scraped states",
	Long:  "Commands for listing, enabling, and disabling the states the scraper covers.",
}

var statesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled states",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		states, err := env.Store.EnabledStates(ctx)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			fmt.Fprintln(os.Stderr, "No enabled states.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tLAST SCRAPED")
		for _, state := range states {
			last, err := env.Store.LastScrapedAt(ctx, state)
			if err != nil {
				return err
			}
			when := "never"
			if last != nil {
				when = last.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\n", state, when)
		}
		w.Flush()
		return nil
	},
}

var statesEnableCmd = &cobra.Command{
	Use:   "enable <state>",
	Short: "Enable a state for scraping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Store.EnableState(ctx, strings.ToUpper(args[0]))
	},
}

var statesDisableCmd = &cobra.Command{
	Use:   "disable <state>",
	Short: "Disable a state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Store.DisableState(ctx, strings.ToUpper(args[0]))
	},
}

func init() {
	scrapeStatusCmd.Flags().Int("limit", 20, "runs to show")
	scrapeCmd.AddCommand(scrapeStatusCmd)
	statesCmd.AddCommand(statesListCmd)
	statesCmd.AddCommand(statesEnableCmd)
	statesCmd.AddCommand(statesDisableCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(statesCmd)
}
