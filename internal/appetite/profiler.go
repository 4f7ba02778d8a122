package appetite

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/store"
)

// Class codes considered per (state, line) when recomputing rankings.
const rankingClassLimit = 50

// Profiler recomputes appetite profiles and competitive rankings from parsed
// filing artifacts.
type Profiler struct {
	st *store.Store
}

// NewProfiler builds a profiler.
func NewProfiler(st *store.Store) *Profiler {
	return &Profiler{st: st}
}

// RecomputeProfile rebuilds and installs the current profile for a triple
// from its parsed artifacts.
func (p *Profiler) RecomputeProfile(ctx context.Context, t store.Triple) (string, error) {
	eligible, err := p.st.CurrentEligibleClasses(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}
	ineligible, err := p.st.CurrentIneligibleClasses(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}
	territories, err := p.st.CurrentTerritoryCodes(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}

	profile := store.AppetiteProfile{
		CarrierID:         t.CarrierID,
		State:             t.State,
		LineOfBusiness:    t.Line,
		AppetiteScore:     5.0, // neutral until rates say otherwise
		EligibleClasses:   eligible,
		IneligibleClasses: ineligible,
	}

	if len(territories) > 0 {
		profile.TerritoryPreferences = map[string]string{}
		for _, code := range territories {
			profile.TerritoryPreferences[code] = "covered"
		}
	}

	own, market, err := p.st.AvgBaseRate(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}
	if own > 0 && market > 0 {
		comp := Competitiveness(own, market)
		profile.RateCompetitiveness = &comp
		profile.AppetiteScore = comp / 10
	}

	filing, err := p.st.LatestEffectiveFiling(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}
	if filing != nil {
		profile.LastRateChangePct = filing.OverallRateChangePct
	}

	count, err := p.st.TripleFilingCount(ctx, t.CarrierID, t.State, t.Line)
	if err != nil {
		return "", err
	}
	profile.SourceFilingCount = count

	id, err := p.st.SaveProfile(ctx, profile)
	if err != nil {
		return "", err
	}
	zap.L().Info("profile recomputed",
		zap.String("component", "appetite"),
		zap.String("carrier_id", t.CarrierID),
		zap.String("state", t.State),
		zap.String("line", t.Line),
		zap.Float64("score", profile.AppetiteScore),
		zap.Int("eligible_classes", len(eligible)))
	return id, nil
}

// Competitiveness maps the carrier's average base rate against the market
// average onto a 0-100 index. Pricing at market is 50; half the market rate
// is 100; double the market rate is 0.
func Competitiveness(own, market float64) float64 {
	idx := (2 - own/market) * 50
	if idx < 0 {
		return 0
	}
	if idx > 100 {
		return 100
	}
	return idx
}

// RecomputeRankings rebuilds the per-class carrier rankings for a (state,
// line) pair, cheapest first.
func (p *Profiler) RecomputeRankings(ctx context.Context, state, line string) (int, error) {
	codes, err := p.st.DistinctClassCodes(ctx, state, line, rankingClassLimit)
	if err != nil {
		return 0, err
	}

	var rankings []store.CarrierRanking
	for _, code := range codes {
		rates, err := p.st.ClassCodeRates(ctx, state, line, code)
		if err != nil {
			return 0, err
		}
		if len(rates) == 0 {
			continue
		}

		type entry struct {
			carrierID string
			rate      float64
		}
		entries := make([]entry, 0, len(rates))
		for carrierID, rate := range rates {
			entries = append(entries, entry{carrierID, rate})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].rate != entries[j].rate {
				return entries[i].rate < entries[j].rate
			}
			return entries[i].carrierID < entries[j].carrierID
		})

		for rank, e := range entries {
			rankings = append(rankings, store.CarrierRanking{
				State:          state,
				LineOfBusiness: line,
				ClassCode:      code,
				CarrierID:      e.carrierID,
				Rank:           rank + 1,
				AvgRate:        e.rate,
			})
		}
	}

	if err := p.st.UpsertRankings(ctx, rankings); err != nil {
		return 0, err
	}
	return len(rankings), nil
}

// RetireStale flips current profiles whose inputs have not been recomputed
// since the cutoff. Returns the retired triples.
func (p *Profiler) RetireStale(ctx context.Context, cutoff time.Time) ([]store.Triple, error) {
	stale, err := p.st.StaleProfiles(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var retired []store.Triple
	for _, profile := range stale {
		if err := p.st.RetireProfile(ctx, profile.ID); err != nil {
			return retired, err
		}
		retired = append(retired, store.Triple{
			CarrierID: profile.CarrierID,
			State:     profile.State,
			Line:      profile.LineOfBusiness,
		})
		zap.L().Warn("profile retired as stale",
			zap.String("component", "appetite"),
			zap.String("carrier_id", profile.CarrierID),
			zap.String("state", profile.State),
			zap.String("line", profile.LineOfBusiness),
			zap.Time("computed_at", profile.ComputedAt))
	}
	return retired, nil
}
