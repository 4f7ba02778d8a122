package pricing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

func TestStandardCoverage(t *testing.T) {
	cases := []struct {
		ltv  float64
		want int
	}{
		{80.0, 0},
		{75.0, 0},
		{82.5, 6},
		{85.0, 6},
		{87.5, 25},
		{90.0, 25},
		{92.5, 30},
		{95.0, 30},
		{96.0, 35},
		{97.0, 35},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StandardCoverage(tc.ltv), "ltv=%.2f", tc.ltv)
	}
}

func TestApplyAdjustmentsComposition(t *testing.T) {
	adjustments := []store.PMIAdjustment{
		{Position: 1, Name: "high dti", Method: "add", Value: 0.15,
			Condition: json.RawMessage(`{"dti_min": 45}`)},
		{Position: 2, Name: "cash out", Method: "multiply", Value: 1.10,
			Condition: json.RawMessage(`{"purpose_eq": "cash_out"}`)},
	}
	attrs := Attributes{"dti": 47.0, "purpose": "cash_out"}

	rate, steps, err := ApplyAdjustments(0.50, adjustments, attrs)
	require.NoError(t, err)
	assert.InDelta(t, 0.7150, rate, 1e-9)

	require.Len(t, steps, 2)
	assert.InDelta(t, 0.50, steps[0].Before, 1e-9)
	assert.InDelta(t, 0.65, steps[0].After, 1e-9)
	assert.InDelta(t, 0.65, steps[1].Before, 1e-9)
	assert.InDelta(t, 0.7150, steps[1].After, 1e-9)
}

func TestApplyAdjustmentsSkipsNonMatching(t *testing.T) {
	adjustments := []store.PMIAdjustment{
		{Name: "high dti", Method: "add", Value: 0.15,
			Condition: json.RawMessage(`{"dti_min": 45}`)},
	}
	rate, steps, err := ApplyAdjustments(0.50, adjustments, Attributes{"dti": 40.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.50, rate, 1e-9)
	assert.Empty(t, steps)
}

func TestApplyAdjustmentsOverride(t *testing.T) {
	adjustments := []store.PMIAdjustment{
		{Position: 1, Name: "state override", Method: "override", Value: 0.42,
			Condition: json.RawMessage(`{"state_eq": "TX"}`)},
	}

	rate, steps, err := ApplyAdjustments(0.50, adjustments, Attributes{"state": "TX"})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, rate, 1e-9)

	require.Len(t, steps, 1)
	assert.InDelta(t, 0.50, steps[0].Before, 1e-9)
	assert.InDelta(t, 0.42, steps[0].After, 1e-9)
}

func TestQuoteCardDeclinesOnBadAdjustments(t *testing.T) {
	e := NewPMIEngine(nil, config.PricingConfig{})
	card := store.PMIRateCard{
		ID:        "card-1",
		CarrierID: "carrier-1",
		Rates: []store.PMIRate{
			{LTVMin: 85.01, LTVMax: 90, FICOMin: 620, FICOMax: 850, CoveragePct: 25, Rate: 0.55},
		},
		Adjustments: []store.PMIAdjustment{
			{Name: "broken", Method: "add", Value: 0.1, Condition: json.RawMessage(`not json`)},
		},
	}
	req := PMIRequest{State: "TX", LoanAmount: 352_000, PropertyValue: 400_000, FICO: 700}

	_, ok, err := e.quoteCard(context.Background(), card, 88, 25, req, Attributes{})
	require.NoError(t, err, "a bad card declines instead of sinking the quote")
	assert.False(t, ok)
}

func TestApplyAdjustmentsUnknownMethod(t *testing.T) {
	adjustments := []store.PMIAdjustment{
		{Name: "bad", Method: "divide", Value: 2, Condition: json.RawMessage(`{}`)},
	}
	_, _, err := ApplyAdjustments(0.50, adjustments, Attributes{})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindValidation))
}

func TestApplyAdjustmentsFloorsAtZero(t *testing.T) {
	adjustments := []store.PMIAdjustment{
		{Name: "credit", Method: "add", Value: -1.0, Condition: json.RawMessage(`{}`)},
	}
	rate, _, err := ApplyAdjustments(0.50, adjustments, Attributes{})
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestLookupRate(t *testing.T) {
	rates := []store.PMIRate{
		{LTVMin: 85.01, LTVMax: 90, FICOMin: 700, FICOMax: 739, CoveragePct: 25, Rate: 0.55},
		{LTVMin: 85.01, LTVMax: 90, FICOMin: 740, FICOMax: 850, CoveragePct: 25, Rate: 0.38},
		{LTVMin: 90.01, LTVMax: 95, FICOMin: 740, FICOMax: 850, CoveragePct: 30, Rate: 0.46},
	}

	rate, ok := lookupRate(rates, 88, 750, 25)
	require.True(t, ok)
	assert.InDelta(t, 0.38, rate, 1e-9)

	rate, ok = lookupRate(rates, 90, 700, 25)
	require.True(t, ok, "upper LTV bound is inclusive")
	assert.InDelta(t, 0.55, rate, 1e-9)

	_, ok = lookupRate(rates, 92, 650, 30)
	assert.False(t, ok, "no cell for that FICO")
}

func TestValidatePMIRequest(t *testing.T) {
	base := PMIRequest{State: "TX", LoanAmount: 380_000, PropertyValue: 400_000, FICO: 720}
	assert.NoError(t, validatePMIRequest(base))

	bad := base
	bad.FICO = 250
	err := validatePMIRequest(bad)
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindValidation))

	bad = base
	bad.LoanAmount = 0
	assert.Error(t, validatePMIRequest(bad))

	bad = base
	bad.State = ""
	assert.Error(t, validatePMIRequest(bad))
}

func TestPremiumDerivations(t *testing.T) {
	// 0.62 on a 380k loan: annual 2356, monthly 196.33, single at the 3.0
	// default 7068.
	rate := 0.62
	loan := 380_000.0
	annual := rate / 100 * loan
	assert.InDelta(t, 2356.0, annual, 1e-6)
	assert.InDelta(t, 196.3333, annual/12, 1e-3)
	assert.InDelta(t, 7068.0, annual*3.0, 1e-6)
}
