package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/internal/tasks"
)

var appetiteCmd = &cobra.Command{
	Use:   "appetite",
	Short: "Track carrier appetite",
	Long:  "Commands for detecting appetite shifts, recomputing profiles, and inspecting a carrier's current profile.",
}

var appetiteDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect appetite shifts from recent filings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Registry.Run(ctx, tasks.TaskDetectShifts)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, result)
	},
}

var appetiteRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute appetite profiles and rankings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Registry.Run(ctx, tasks.TaskRecomputeProfiles)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, result)
	},
}

var appetiteShowCmd = &cobra.Command{
	Use:   "show <naic> <state> <line>",
	Short: "Show a carrier's current profile in one market",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		carrier, err := env.Store.GetCarrierByNAIC(ctx, args[0])
		if err != nil {
			return err
		}
		if carrier == nil {
			return fmt.Errorf("no carrier with NAIC %s", args[0])
		}

		profile, err := env.Store.CurrentProfile(ctx, carrier.ID, strings.ToUpper(args[1]), args[2])
		if err != nil {
			return err
		}
		if profile == nil {
			fmt.Fprintln(os.Stderr, "No current profile for this market.")
			return nil
		}
		return printJSON(os.Stdout, profile)
	},
}

var appetiteDetectOneCmd = &cobra.Command{
	Use:   "detect-one <naic> <state> <line>",
	Short: "Run shift detection for a single carrier market",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		carrier, err := env.Store.GetCarrierByNAIC(ctx, args[0])
		if err != nil {
			return err
		}
		if carrier == nil {
			return fmt.Errorf("no carrier with NAIC %s", args[0])
		}

		emitted, err := env.Detector.DetectTriple(ctx, store.Triple{
			CarrierID: carrier.ID,
			State:     strings.ToUpper(args[1]),
			Line:      args[2],
		})
		if err != nil {
			return err
		}
		fmt.Printf("%d signal(s) emitted\n", emitted)
		return nil
	},
}

func init() {
	appetiteCmd.AddCommand(appetiteDetectCmd)
	appetiteCmd.AddCommand(appetiteRecomputeCmd)
	appetiteCmd.AddCommand(appetiteShowCmd)
	appetiteCmd.AddCommand(appetiteDetectOneCmd)
	rootCmd.AddCommand(appetiteCmd)
}
