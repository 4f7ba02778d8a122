// Package appetite derives carrier appetite from parsed filings: the
// detector emits change signals, the profiler maintains the current appetite
// profile and competitive rankings.
package appetite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/store"
)

// Dedupe windows. A signal of the same type for the same (carrier, state) is
// not re-emitted inside its window.
const (
	signalDedupeWindow = 7 * 24 * time.Hour
	entryDedupeWindow  = 30 * 24 * time.Hour
)

// Withdrawal lookback for the filing_withdrawal signal.
const withdrawalWindow = 7 * 24 * time.Hour

// Rate-change thresholds.
const (
	decreaseThresholdPct = -5.0
	increaseThresholdPct = 10.0
)

// Detector turns filing activity into appetite signals.
type Detector struct {
	st *store.Store
}

// NewDetector builds a detector.
func NewDetector(st *store.Store) *Detector {
	return &Detector{st: st}
}

// DetectTriple evaluates one (carrier, state, line) triple and commits every
// resulting signal in one transaction. Returns the number emitted.
func (d *Detector) DetectTriple(ctx context.Context, t store.Triple) (int, error) {
	filing, err := d.st.LatestEffectiveFiling(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return 0, err
	}
	profile, err := d.st.CurrentProfile(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return 0, err
	}

	var signals []store.AppetiteSignal

	// A filing with no profile is a market entry. Every other signal type
	// needs a profile to diff against.
	if profile == nil {
		if filing != nil {
			signals = append(signals, store.AppetiteSignal{
				CarrierID:    t.CarrierID,
				State:        t.State,
				SignalType:   store.SignalNewStateEntry,
				Strength:     8,
				Description:  fmt.Sprintf("first %s filing observed in %s", t.Line, t.State),
				SourceFiling: &filing.ID,
			})
		}
		return d.commit(ctx, t, signals)
	}

	if filing != nil && filing.OverallRateChangePct != nil {
		pct := *filing.OverallRateChangePct
		switch {
		case pct <= decreaseThresholdPct:
			signals = append(signals, store.AppetiteSignal{
				ProfileID:    &profile.ID,
				CarrierID:    t.CarrierID,
				State:        t.State,
				SignalType:   store.SignalRateDecrease,
				Strength:     clampStrength(math.Abs(pct)/2, 1, 10),
				Description:  fmt.Sprintf("overall rate change %.1f%% in %s", pct, filing.SERFFTracking),
				SourceFiling: &filing.ID,
			})
		case pct >= increaseThresholdPct:
			signals = append(signals, store.AppetiteSignal{
				ProfileID:    &profile.ID,
				CarrierID:    t.CarrierID,
				State:        t.State,
				SignalType:   store.SignalRateIncrease,
				Strength:     clampStrength(pct/3, 1, 10),
				Description:  fmt.Sprintf("overall rate change +%.1f%% in %s", pct, filing.SERFFTracking),
				SourceFiling: &filing.ID,
			})
		}
	}

	classSignals, err := d.classDiffSignals(ctx, t, profile, filing)
	if err != nil {
		return 0, err
	}
	signals = append(signals, classSignals...)

	territorySignal, err := d.territorySignal(ctx, t, profile, filing)
	if err != nil {
		return 0, err
	}
	if territorySignal != nil {
		signals = append(signals, *territorySignal)
	}

	withdrawn, err := d.st.RecentWithdrawnCount(ctx, t.CarrierID, t.State, t.Line, time.Now().Add(-withdrawalWindow))
	if err != nil {
		return 0, err
	}
	if withdrawn > 0 {
		signals = append(signals, store.AppetiteSignal{
			ProfileID:   &profile.ID,
			CarrierID:   t.CarrierID,
			State:       t.State,
			SignalType:  store.SignalFilingWithdrawal,
			Strength:    clampStrength(float64(withdrawn+3), 5, 10),
			Description: fmt.Sprintf("%d %s filing(s) withdrawn in the last 7 days", withdrawn, t.Line),
		})
	}

	return d.commit(ctx, t, signals)
}

// classDiffSignals compares the currently filed eligible classes against the
// profile's snapshot.
func (d *Detector) classDiffSignals(ctx context.Context, t store.Triple, profile *store.AppetiteProfile, filing *store.Filing) ([]store.AppetiteSignal, error) {
	current, err := d.st.CurrentEligibleClasses(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil // nothing parsed yet, a diff would be all-removals
	}

	added, removed := diffStrings(profile.EligibleClasses, current)
	var signals []store.AppetiteSignal
	var sourceFiling *string
	if filing != nil {
		sourceFiling = &filing.ID
	}

	if len(added) > 0 {
		signals = append(signals, store.AppetiteSignal{
			ProfileID:    &profile.ID,
			CarrierID:    t.CarrierID,
			State:        t.State,
			SignalType:   store.SignalExpandedClasses,
			Strength:     clampStrength(float64(len(added)), 1, 10),
			Description:  fmt.Sprintf("now eligible: %s", strings.Join(added, ", ")),
			SourceFiling: sourceFiling,
		})
	}
	if len(removed) > 0 {
		signals = append(signals, store.AppetiteSignal{
			ProfileID:    &profile.ID,
			CarrierID:    t.CarrierID,
			State:        t.State,
			SignalType:   store.SignalContractedClasses,
			Strength:     clampStrength(float64(len(removed)+2), 1, 10),
			Description:  fmt.Sprintf("no longer eligible: %s", strings.Join(removed, ", ")),
			SourceFiling: sourceFiling,
		})
	}
	return signals, nil
}

// territorySignal fires when territories appear that the profile has never
// seen.
func (d *Detector) territorySignal(ctx context.Context, t store.Triple, profile *store.AppetiteProfile, filing *store.Filing) (*store.AppetiteSignal, error) {
	current, err := d.st.CurrentTerritoryCodes(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}

	known := make([]string, 0, len(profile.TerritoryPreferences))
	for code := range profile.TerritoryPreferences {
		known = append(known, code)
	}
	added, _ := diffStrings(known, current)
	if len(added) == 0 {
		return nil, nil
	}

	var sourceFiling *string
	if filing != nil {
		sourceFiling = &filing.ID
	}
	sort.Strings(added)
	return &store.AppetiteSignal{
		ProfileID:    &profile.ID,
		CarrierID:    t.CarrierID,
		State:        t.State,
		SignalType:   store.SignalTerritoryExpansion,
		Strength:     clampStrength(float64(len(added)), 1, 10),
		Description:  fmt.Sprintf("new territories: %s", strings.Join(added, ", ")),
		SourceFiling: sourceFiling,
	}, nil
}

// commit writes the triple's signals in one transaction, skipping any with a
// same-type signal inside its dedupe window.
func (d *Detector) commit(ctx context.Context, t store.Triple, signals []store.AppetiteSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	emitted := 0
	err := d.st.Session(ctx, func(ctx context.Context, tx *store.Store) error {
		for _, sig := range signals {
			window := signalDedupeWindow
			if sig.SignalType == store.SignalNewStateEntry {
				window = entryDedupeWindow
			}
			dup, err := tx.HasRecentSignal(ctx, sig.CarrierID, sig.State, sig.SignalType, time.Now().Add(-window))
			if err != nil {
				return err
			}
			if dup {
				continue
			}
			if _, err := tx.InsertSignal(ctx, sig); err != nil {
				return err
			}
			emitted++
			zap.L().Info("appetite signal",
				zap.String("component", "appetite"),
				zap.String("carrier_id", sig.CarrierID),
				zap.String("state", sig.State),
				zap.String("line", t.Line),
				zap.String("type", sig.SignalType),
				zap.Int("strength", sig.Strength))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return emitted, nil
}

// clampStrength rounds a raw strength into [lo, hi].
func clampStrength(raw float64, lo, hi int) int {
	n := int(math.Round(raw))
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// diffStrings returns elements of current missing from prior (added) and
// elements of prior missing from current (removed), both sorted.
func diffStrings(prior, current []string) (added, removed []string) {
	priorSet := map[string]bool{}
	for _, s := range prior {
		priorSet[s] = true
	}
	currentSet := map[string]bool{}
	for _, s := range current {
		currentSet[s] = true
	}

	for s := range currentSet {
		if !priorSet[s] {
			added = append(added, s)
		}
	}
	for s := range priorSet {
		if !currentSet[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
