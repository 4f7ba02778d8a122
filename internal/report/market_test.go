package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTrendHardening(t *testing.T) {
	assert.Equal(t, TrendHardening, ClassifyTrend(7.2, 3, 10, 1, 1), "average above +5")
	assert.Equal(t, TrendHardening, ClassifyTrend(1.0, 1, 10, 1, 4), "withdrawals outpace entrants")
	assert.Equal(t, TrendHardening, ClassifyTrend(2.0, 7, 10, 2, 2), "70%% of filings are increases")
}

func TestClassifyTrendSoftening(t *testing.T) {
	assert.Equal(t, TrendSoftening, ClassifyTrend(-6.5, 5, 10, 1, 1), "average below -5")
	assert.Equal(t, TrendSoftening, ClassifyTrend(-1.0, 5, 10, 5, 2), "entrants outpace withdrawals")
	assert.Equal(t, TrendSoftening, ClassifyTrend(0.0, 3, 10, 1, 1), "only 30%% increases")
}

func TestClassifyTrendMixed(t *testing.T) {
	assert.Equal(t, TrendMixed, ClassifyTrend(1.0, 5, 10, 1, 1), "even split over enough filings")
}

func TestClassifyTrendStable(t *testing.T) {
	assert.Equal(t, TrendStable, ClassifyTrend(1.0, 2, 4, 1, 1), "too few filings for mixed")
	assert.Equal(t, TrendStable, ClassifyTrend(0.0, 0, 0, 0, 0), "empty market")
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, Severity(10))
	assert.Equal(t, SeverityHigh, Severity(7))
	assert.Equal(t, SeverityMedium, Severity(6))
	assert.Equal(t, SeverityMedium, Severity(4))
	assert.Equal(t, SeverityLow, Severity(3))
	assert.Equal(t, SeverityLow, Severity(1))
}

func TestBoostedStrength(t *testing.T) {
	assert.Equal(t, 5, BoostedStrength(5, false))
	assert.Equal(t, 7, BoostedStrength(5, true))
	assert.Equal(t, 10, BoostedStrength(9, true), "caps at 10")
}

func TestBoostCrossesSeverityBoundary(t *testing.T) {
	// A medium signal on an open submission becomes high.
	assert.Equal(t, SeverityHigh, Severity(BoostedStrength(6, true)))
}

func TestMedianOfSorted(t *testing.T) {
	assert.InDelta(t, 2.0, medianOfSorted([]float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 2.5, medianOfSorted([]float64{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, 0.0, medianOfSorted(nil), 1e-9)
}
