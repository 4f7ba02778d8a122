package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"Closed-Acknowledged":  store.StatusApproved,
		"Approved":             store.StatusApproved,
		"Filed & Effective":    store.StatusApproved,
		"Withdrawn":            store.StatusWithdrawn,
		"Closed-Withdrawn":     store.StatusWithdrawn,
		"Disapproved":          store.StatusDisapproved,
		"Rejected":             store.StatusDisapproved,
		"Pending Review":       store.StatusPending,
		"Under Consideration":  store.StatusPending,
		"Objection Letter Out": store.StatusPending,
		"":                     "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizeFilingType(t *testing.T) {
	cases := map[string]string{
		"Rate":            store.FilingRate,
		"Rate/Rule":       store.FilingRateRuleForm,
		"Rate/Rule/Form":  store.FilingRateRuleForm,
		"Rule":            store.FilingRule,
		"Form":            store.FilingForm,
		"Withdrawal":      store.FilingWithdrawal,
		"Loss Cost":       store.FilingRate,
		"Rate and Form":   store.FilingRateRuleForm,
		"Something Novel": "",
		"":                "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeFilingType(raw), "raw=%q", raw)
	}
}

func TestNumericFilingID(t *testing.T) {
	id, err := NumericFilingID("ABCD-134267916")
	require.NoError(t, err)
	assert.Equal(t, "134267916", id)

	id, err = NumericFilingID("ABCD-G134267916")
	require.NoError(t, err)
	assert.Equal(t, "134267916", id)
}

func TestNumericFilingIDRestricted(t *testing.T) {
	_, err := NumericFilingID("ABCD-G-134267916")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindPortalPermanent))
}

func TestNumericFilingIDNonNumeric(t *testing.T) {
	_, err := NumericFilingID("ABCD-13X42")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindPortalPermanent))

	_, err = NumericFilingID("ABCD-")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindPortalPermanent))
}

func TestParsePortalDate(t *testing.T) {
	d := parsePortalDate("04/15/2026")
	require.NotNil(t, d)
	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, 4, int(d.Month()))

	assert.Nil(t, parsePortalDate(""))
	assert.Nil(t, parsePortalDate("N/A"))
}

func TestNormalizeCompanyName(t *testing.T) {
	assert.Equal(t, "Acme Insurance Company", NormalizeCompanyName("ACME  INSURANCE COMPANY"))
	assert.Equal(t, "Acme Specialty RRG LLC", NormalizeCompanyName("ACME SPECIALTY RRG LLC"))
	assert.Equal(t, "Acme of Texas", NormalizeCompanyName("Acme of Texas"), "mixed case passes through")
	assert.Equal(t, "", NormalizeCompanyName("  "))
}

func TestFirstNumericToken(t *testing.T) {
	assert.Equal(t, "12345", firstNumericToken("NAIC # 12345 (Group 99)"))
	assert.Equal(t, "", firstNumericToken("none"))
}
