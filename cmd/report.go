package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hermes-intel/hermes/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Market reports and alert digests",
}

var reportMarketCmd = &cobra.Command{
	Use:   "market <state> <line>",
	Short: "Build the trailing market report for one market",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		period, _ := cmd.Flags().GetInt("period")
		intel, err := env.Reporter.BuildReport(ctx, strings.ToUpper(args[0]), args[1], period)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, intel)
	},
}

var reportDigestCmd = &cobra.Command{
	Use:   "digest <state>",
	Short: "Show the last 24 hours of alerts for a state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		digest, err := env.Alerter.DailyDigest(ctx, strings.ToUpper(args[0]))
		if err != nil {
			return err
		}

		total := len(digest.High) + len(digest.Medium) + len(digest.Low)
		if total == 0 {
			fmt.Fprintln(os.Stderr, "No alerts in the last 24 hours.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tCARRIER\tTYPE\tSTRENGTH\tDESCRIPTION")
		for _, group := range [][]report.Alert{digest.High, digest.Medium, digest.Low} {
			for _, a := range group {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					a.Severity, a.CarrierName, a.Signal.SignalType, a.Strength, a.Signal.Description)
			}
		}
		w.Flush()
		return nil
	},
}

// -- alerts --

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and acknowledge appetite alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unacknowledged alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		minStrength, _ := cmd.Flags().GetInt("min-strength")
		alerts, err := env.Alerter.Unread(ctx, minStrength)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No unacknowledged alerts.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSEVERITY\tSTATE\tCARRIER\tTYPE\tSTRENGTH\tDATE")
		for _, a := range alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				a.Signal.ID, a.Severity, a.Signal.State, a.CarrierName,
				a.Signal.SignalType, a.Strength, a.Signal.SignalDate.Format("2006-01-02"))
		}
		w.Flush()
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <signal-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Alerter.Acknowledge(ctx, args[0])
	},
}

func init() {
	reportMarketCmd.Flags().Int("period", 90, "trailing window in days")
	alertsListCmd.Flags().Int("min-strength", 1, "minimum signal strength")

	reportCmd.AddCommand(reportMarketCmd)
	reportCmd.AddCommand(reportDigestCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAckCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(alertsCmd)
}
