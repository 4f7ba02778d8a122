package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/pricing"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Quote PMI and title premiums",
	Long:  "Quotes every carrier with a current rate card, and installs new cards from filed rate manuals.",
}

// -- price pmi --

var pmiFlags struct {
	state       string
	loan        float64
	value       float64
	fico        int
	premiumType string
	coverage    float64
	jsonOut     bool
}

var pricePMICmd = &cobra.Command{
	Use:   "pmi",
	Short: "Quote mortgage insurance across carriers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		quotes, err := env.PMI.Quote(ctx, pricing.PMIRequest{
			State:         strings.ToUpper(pmiFlags.state),
			LoanAmount:    pmiFlags.loan,
			PropertyValue: pmiFlags.value,
			FICO:          pmiFlags.fico,
			PremiumType:   pmiFlags.premiumType,
			CoveragePct:   pmiFlags.coverage,
		})
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Fprintln(os.Stderr, "No mortgage insurance required, or no carrier quoted.")
			return nil
		}
		if pmiFlags.jsonOut {
			return printJSON(os.Stdout, quotes)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tCARRIER\tRATE\tANNUAL\tMONTHLY\tSINGLE")
		for _, q := range quotes {
			fmt.Fprintf(w, "%d\t%s\t%.3f\t%.2f\t%.2f\t%.2f\n",
				q.Rank, q.CarrierName, q.AdjustedRate, q.AnnualPremium, q.MonthlyPremium, q.SinglePremium)
		}
		w.Flush()
		return nil
	},
}

// -- price title --

var titleFlags struct {
	state        string
	policyType   string
	owner        float64
	loan         float64
	priorYears   int
	endorsements []string
	jsonOut      bool
}

var priceTitleCmd = &cobra.Command{
	Use:   "title",
	Short: "Quote title insurance across underwriters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := pricing.TitleRequest{
			State:         strings.ToUpper(titleFlags.state),
			PolicyType:    titleFlags.policyType,
			OwnerCoverage: titleFlags.owner,
			LoanAmount:    titleFlags.loan,
			Endorsements:  titleFlags.endorsements,
		}
		if cmd.Flags().Changed("prior-years") {
			years := titleFlags.priorYears
			req.PriorPolicyYears = &years
		}

		quotes, err := env.Title.Quote(ctx, req)
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Fprintln(os.Stderr, "No underwriter quoted.")
			return nil
		}
		if titleFlags.jsonOut {
			return printJSON(os.Stdout, quotes)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUNDERWRITER\tOWNER\tLENDER\tCREDIT\tENDORSEMENTS\tTOTAL")
		for _, q := range quotes {
			fees := 0.0
			for _, f := range q.EndorsementFees {
				fees += f.Fee
			}
			fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
				q.Rank, q.CarrierName, q.OwnerPremium, q.LenderPremium, q.ReissueCredit, fees, q.Total)
		}
		w.Flush()
		return nil
	},
}

// -- price install-pmi / install-title --

var priceInstallPMICmd = &cobra.Command{
	Use:   "install-pmi <workbook.xlsx>",
	Short: "Install a PMI rate card from a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cardID, err := pricing.InstallPMIWorkbook(ctx, env.Store, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("pmi rate card installed", zap.String("card_id", cardID))
		return nil
	},
}

var priceInstallTitleCmd = &cobra.Command{
	Use:   "install-title <bundle.yaml>",
	Short: "Install title rate cards from a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		naics, err := pricing.InstallTitleBundle(ctx, env.Store, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("title rate cards installed", zap.Strings("naics", naics))
		return nil
	},
}

func init() {
	pricePMICmd.Flags().StringVar(&pmiFlags.state, "state", "", "property state (required)")
	pricePMICmd.Flags().Float64Var(&pmiFlags.loan, "loan", 0, "loan amount (required)")
	pricePMICmd.Flags().Float64Var(&pmiFlags.value, "value", 0, "property value (required)")
	pricePMICmd.Flags().IntVar(&pmiFlags.fico, "fico", 0, "representative FICO score (required)")
	pricePMICmd.Flags().StringVar(&pmiFlags.premiumType, "premium-type", "borrower_monthly", "borrower_monthly, borrower_single, lender_paid, or split")
	pricePMICmd.Flags().Float64Var(&pmiFlags.coverage, "coverage", 0, "coverage percent (default: GSE standard for the LTV)")
	pricePMICmd.Flags().BoolVar(&pmiFlags.jsonOut, "json", false, "emit quotes as JSON")
	_ = pricePMICmd.MarkFlagRequired("state")
	_ = pricePMICmd.MarkFlagRequired("loan")
	_ = pricePMICmd.MarkFlagRequired("value")
	_ = pricePMICmd.MarkFlagRequired("fico")

	priceTitleCmd.Flags().StringVar(&titleFlags.state, "state", "", "property state (required)")
	priceTitleCmd.Flags().StringVar(&titleFlags.policyType, "policy-type", "", "owner, lender, or simultaneous (default: inferred from the amounts)")
	priceTitleCmd.Flags().Float64Var(&titleFlags.owner, "owner", 0, "owner policy coverage")
	priceTitleCmd.Flags().Float64Var(&titleFlags.loan, "loan", 0, "lender policy loan amount")
	priceTitleCmd.Flags().IntVar(&titleFlags.priorYears, "prior-years", 0, "age of the prior policy in years, for reissue credit")
	priceTitleCmd.Flags().StringSliceVar(&titleFlags.endorsements, "endorsement", nil, "endorsement code, repeatable")
	priceTitleCmd.Flags().BoolVar(&titleFlags.jsonOut, "json", false, "emit quotes as JSON")
	_ = priceTitleCmd.MarkFlagRequired("state")

	priceCmd.AddCommand(pricePMICmd)
	priceCmd.AddCommand(priceTitleCmd)
	priceCmd.AddCommand(priceInstallPMICmd)
	priceCmd.AddCommand(priceInstallTitleCmd)
	rootCmd.AddCommand(priceCmd)
}
