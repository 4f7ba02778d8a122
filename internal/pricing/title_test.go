package pricing

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/store"
)

func titleBands() []store.TitleRate {
	return []store.TitleRate{
		{CoverageMin: 0, CoverageMax: 100_000, RatePerThousand: 5.50, MinimumPremium: 350},
		{CoverageMin: 100_000, CoverageMax: 500_000, RatePerThousand: 4.00},
		{CoverageMin: 500_000, CoverageMax: 0, RatePerThousand: 3.00},
	}
}

func TestBandPremiumWalk(t *testing.T) {
	// 250k: 100k at 5.50 + 150k at 4.00 = 550 + 600 = 1150.
	assert.InDelta(t, 1150.0, BandPremium(titleBands(), 250_000), 1e-6)

	// 600k crosses all three bands: 550 + 1600 + 300 = 2450.
	assert.InDelta(t, 2450.0, BandPremium(titleBands(), 600_000), 1e-6)
}

func TestBandPremiumMinimumFloor(t *testing.T) {
	// 40k at 5.50 = 220, floored at the 350 minimum.
	assert.InDelta(t, 350.0, BandPremium(titleBands(), 40_000), 1e-6)
}

func TestSimultaneousDiscountNeverNegative(t *testing.T) {
	full := 100.0
	bands := []store.TitleSimultaneous{
		{LoanMin: 0, LoanMax: 0, DiscountPct: &full, FlatFee: 125},
	}

	lenderPremium := BandPremium(titleBands(), 300_000)
	discount, flat := simultaneousDiscount(bands, 300_000, lenderPremium)
	assert.InDelta(t, lenderPremium, discount, 1e-6)

	due := lenderPremium - discount
	if due < 0 {
		due = 0
	}
	due += flat
	assert.InDelta(t, 125.0, due, 1e-6, "full discount leaves only the flat fee")
	assert.GreaterOrEqual(t, due, 0.0)
}

func TestSimultaneousDiscountRatePerThousand(t *testing.T) {
	rpt := 1.25
	bands := []store.TitleSimultaneous{
		{LoanMin: 0, LoanMax: 400_000, DiscountRatePerThousand: &rpt},
	}
	discount, flat := simultaneousDiscount(bands, 320_000, 1000)
	assert.InDelta(t, 400.0, discount, 1e-6)
	assert.Zero(t, flat)
}

func TestReissueCredit(t *testing.T) {
	tiers := []store.TitleReissue{
		{YearsMin: 0, YearsMax: 3, CreditPct: 50},
		{YearsMin: 3.01, YearsMax: 7, CreditPct: 25},
	}
	assert.InDelta(t, 500.0, reissueCredit(tiers, 1000, 2), 1e-6)
	assert.InDelta(t, 250.0, reissueCredit(tiers, 1000, 5), 1e-6)
	assert.Zero(t, reissueCredit(tiers, 1000, 10), "aged out of every tier")
}

func TestEndorsementFee(t *testing.T) {
	endorsements := []store.TitleEndorsement{
		{Code: "T-19", FlatFee: 0, PctOfBase: 5},
		{Code: "T-33", FlatFee: 50, RatePerThousand: 0.10},
	}

	fee, ok := endorsementFee(endorsements, "T-19", 1200)
	require.True(t, ok)
	assert.InDelta(t, 60.0, fee, 1e-6)

	fee, ok = endorsementFee(endorsements, "T-33", 1200)
	require.True(t, ok)
	assert.InDelta(t, 50.12, fee, 1e-6)

	_, ok = endorsementFee(endorsements, "T-99", 1200)
	assert.False(t, ok)
}

func TestResolvePolicyType(t *testing.T) {
	assert.Equal(t, "simultaneous", resolvePolicyType(TitleRequest{OwnerCoverage: 400_000, LoanAmount: 320_000}))
	assert.Equal(t, "owner", resolvePolicyType(TitleRequest{OwnerCoverage: 400_000}))
	assert.Equal(t, "lender", resolvePolicyType(TitleRequest{LoanAmount: 320_000}))
	assert.Equal(t, "lender", resolvePolicyType(TitleRequest{PolicyType: " Lender ", OwnerCoverage: 400_000}))
}

func TestValidateTitleRequest(t *testing.T) {
	assert.NoError(t, validateTitleRequest(TitleRequest{State: "TX", OwnerCoverage: 400_000}, "owner"))
	assert.NoError(t, validateTitleRequest(TitleRequest{State: "TX", LoanAmount: 320_000}, "lender"))
	assert.Error(t, validateTitleRequest(TitleRequest{OwnerCoverage: 400_000}, "owner"))
	assert.Error(t, validateTitleRequest(TitleRequest{State: "TX"}, "owner"))
	assert.Error(t, validateTitleRequest(TitleRequest{State: "TX"}, "lender"))
	assert.Error(t, validateTitleRequest(TitleRequest{State: "TX", OwnerCoverage: 400_000}, "simultaneous"))
	assert.Error(t, validateTitleRequest(TitleRequest{State: "TX", OwnerCoverage: 400_000, LoanAmount: -1}, "owner"))
	assert.Error(t, validateTitleRequest(TitleRequest{State: "TX", OwnerCoverage: 400_000}, "bridge"))
}

func TestQuoteCarrierLenderOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT legal_name FROM hermes_carriers").
		WithArgs("carrier-1").
		WillReturnRows(pgxmock.NewRows([]string{"legal_name"}).AddRow("Alamo Title"))

	lender := store.TitleRateCard{
		CarrierID: "carrier-1",
		Bands:     titleBands(),
		Reissue: []store.TitleReissue{
			{YearsMin: 0, YearsMax: 5, CreditPct: 40},
		},
	}
	years := 3
	req := TitleRequest{State: "TX", LoanAmount: 300_000, PriorPolicyYears: &years}

	e := NewTitleEngine(store.New(mock))
	quote, err := e.quoteCarrier(context.Background(), "lender", store.TitleRateCard{}, lender, req)
	require.NoError(t, err)

	// 100k at 5.50 + 200k at 4.00 = 1350, reissue credit 40% off the lender
	// premium since no owner policy is issued.
	assert.Equal(t, "Alamo Title", quote.CarrierName)
	assert.Zero(t, quote.OwnerPremium)
	assert.InDelta(t, 1350.0, quote.LenderPremium, 1e-6)
	assert.InDelta(t, 540.0, quote.ReissueCredit, 1e-6)
	assert.Zero(t, quote.SimultaneousDiscount)
	assert.InDelta(t, 810.0, quote.Total, 1e-6)
	assert.NoError(t, mock.ExpectationsWereMet())
}
