package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/store"
)

// Market trend vocabulary.
const (
	TrendHardening = "hardening"
	TrendSoftening = "softening"
	TrendMixed     = "mixed"
	TrendStable    = "stable"
)

// Top signals embedded in a report.
const topSignalLimit = 10

// Reporter computes and stores per-market intelligence.
type Reporter struct {
	st *store.Store
}

// NewReporter builds a reporter.
func NewReporter(st *store.Store) *Reporter {
	return &Reporter{st: st}
}

// BuildReport recomputes the market report for a (state, line) pair over the
// trailing window and upserts it. Returns the stored report.
func (r *Reporter) BuildReport(ctx context.Context, state, line string, periodDays int) (store.MarketIntel, error) {
	since := time.Now().AddDate(0, 0, -periodDays)

	intel := store.MarketIntel{
		State:          state,
		LineOfBusiness: line,
		PeriodDays:     periodDays,
	}

	filingCount, changes, err := r.st.RateChangeStats(ctx, state, line, since)
	if err != nil {
		return intel, err
	}
	intel.FilingCount = filingCount

	increases, decreases := 0, 0
	for _, pct := range changes {
		switch {
		case pct > 0:
			increases++
		case pct < 0:
			decreases++
		}
	}
	intel.RateIncreases = increases
	intel.RateDecreases = decreases

	var avg float64
	if len(changes) > 0 {
		sum := 0.0
		for _, pct := range changes {
			sum += pct
		}
		avg = sum / float64(len(changes))
		median := medianOfSorted(changes)
		intel.AvgRateChangePct = &avg
		intel.MedianRateChangePct = &median
	}

	if intel.NewEntrants, err = r.st.NewEntrants(ctx, state, line, since); err != nil {
		return intel, err
	}
	if intel.Withdrawals, err = r.st.Withdrawals(ctx, state, line, since); err != nil {
		return intel, err
	}

	intel.MarketTrend = ClassifyTrend(avg, increases, len(changes),
		len(intel.NewEntrants), len(intel.Withdrawals))

	signals, err := r.st.SignalsSince(ctx, state, since, topSignalLimit)
	if err != nil {
		return intel, err
	}
	intel.TopSignals = make([]map[string]any, 0, len(signals))
	for _, sig := range signals {
		intel.TopSignals = append(intel.TopSignals, map[string]any{
			"signal_type": sig.SignalType,
			"carrier_id":  sig.CarrierID,
			"strength":    sig.Strength,
			"description": sig.Description,
			"signal_date": sig.SignalDate.Format("2006-01-02"),
		})
	}

	id, err := r.st.UpsertMarketIntel(ctx, intel)
	if err != nil {
		return intel, err
	}
	intel.ID = id

	zap.L().Info("market report computed",
		zap.String("component", "report"),
		zap.String("state", state),
		zap.String("line", line),
		zap.Int("period_days", periodDays),
		zap.Int("filings", filingCount),
		zap.String("trend", intel.MarketTrend))
	return intel, nil
}

// ClassifyTrend reads the market's direction from its rate-change mix and
// carrier movement. Hardening and softening tests run first; a market that
// is neither but shows a genuine split of increases and decreases over
// enough filings is mixed; thin or flat markets are stable.
func ClassifyTrend(avgChangePct float64, increases, rateFilings, entrants, withdrawals int) string {
	pctIncreases := 0.0
	if rateFilings > 0 {
		pctIncreases = float64(increases) / float64(rateFilings) * 100
	}

	switch {
	case avgChangePct > 5,
		withdrawals >= entrants+2,
		rateFilings > 0 && pctIncreases >= 60:
		return TrendHardening
	case avgChangePct < -5,
		entrants >= withdrawals+2,
		rateFilings > 0 && pctIncreases <= 40:
		return TrendSoftening
	case rateFilings >= 5 && pctIncreases >= 35 && pctIncreases <= 65:
		return TrendMixed
	default:
		return TrendStable
	}
}

// medianOfSorted returns the median of an ascending-sorted slice.
func medianOfSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
