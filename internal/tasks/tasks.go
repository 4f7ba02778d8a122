package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/parser"
)

// Task windows.
const (
	shiftWindow       = 24 * time.Hour
	recomputeWindow   = 24 * time.Hour
	reportPeriodDays  = 90
	staleProfileAge   = 90 * 24 * time.Hour
	stuckScrapeAge    = 6 * time.Hour
	unackedAlertAge   = 24 * time.Hour
	backlogDegradedAt = 500
)

// dailyScrape runs the incremental scrape for every enabled state.
func (r *Registry) dailyScrape(ctx context.Context) (map[string]any, error) {
	summaries, err := r.deps.Scraper.RunAll(ctx)
	if err != nil {
		return nil, err
	}

	found, details, docs, errs, skipped := 0, 0, 0, 0, 0
	for _, s := range summaries {
		found += s.FilingsFound
		details += s.Details
		docs += s.Documents
		errs += len(s.Errors)
		skipped += len(s.Skipped)
	}
	return map[string]any{
		"states":          len(summaries),
		"filings_found":   found,
		"details_scraped": details,
		"documents":       docs,
		"skipped":         skipped,
		"errors":          errs,
	}, nil
}

// parseNewFilings claims a batch of unparsed documents and runs them. The
// claim stamps each document in-flight and expires after thirty minutes, so
// overlapping runs never double-parse and a crashed run releases its batch.
func (r *Registry) parseNewFilings(ctx context.Context) (map[string]any, error) {
	limit := r.deps.ParseCfg.ClaimBatchSize
	if limit <= 0 {
		limit = 100
	}
	docs, err := r.deps.Store.ClaimUnparsed(ctx, limit)
	if err != nil {
		return nil, err
	}

	completed, partial, failed := 0, 0, 0
	cost := 0.0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result := r.deps.Parser.ParseDocument(ctx, doc)
		cost += result.CostUSD
		switch result.Status {
		case parser.StatusCompleted:
			completed++
		case parser.StatusPartial:
			partial++
		default:
			failed++
		}
	}
	return map[string]any{
		"claimed":   len(docs),
		"completed": completed,
		"partial":   partial,
		"failed":    failed,
		"cost_usd":  cost,
	}, nil
}

// detectShifts runs the change detector over triples with recent filing
// activity.
func (r *Registry) detectShifts(ctx context.Context) (map[string]any, error) {
	triples, err := r.deps.Store.ActiveTriples(ctx, time.Now().Add(-shiftWindow))
	if err != nil {
		return nil, err
	}

	emitted := 0
	for _, t := range triples {
		n, err := r.deps.Detector.DetectTriple(ctx, t)
		if err != nil {
			zap.L().Error("shift detection failed",
				zap.String("component", "tasks"),
				zap.String("carrier_id", t.CarrierID),
				zap.String("state", t.State),
				zap.String("line", t.Line),
				zap.Error(err))
			continue
		}
		emitted += n
	}
	return map[string]any{"triples": len(triples), "signals": emitted}, nil
}

// recomputeProfiles rebuilds profiles for triples with freshly parsed
// documents, then refreshes the rankings of every touched market.
func (r *Registry) recomputeProfiles(ctx context.Context) (map[string]any, error) {
	triples, err := r.deps.Store.ParsedTriples(ctx, time.Now().Add(-recomputeWindow))
	if err != nil {
		return nil, err
	}

	recomputed := 0
	markets := map[[2]string]bool{}
	for _, t := range triples {
		if _, err := r.deps.Profiler.RecomputeProfile(ctx, t); err != nil {
			zap.L().Error("profile recompute failed",
				zap.String("component", "tasks"),
				zap.String("carrier_id", t.CarrierID),
				zap.String("state", t.State),
				zap.String("line", t.Line),
				zap.Error(err))
			continue
		}
		recomputed++
		markets[[2]string{t.State, t.Line}] = true
	}

	rankings := 0
	for market := range markets {
		n, err := r.deps.Profiler.RecomputeRankings(ctx, market[0], market[1])
		if err != nil {
			zap.L().Error("ranking recompute failed",
				zap.String("component", "tasks"),
				zap.String("state", market[0]),
				zap.String("line", market[1]),
				zap.Error(err))
			continue
		}
		rankings += n
	}
	return map[string]any{
		"triples":  len(triples),
		"profiles": recomputed,
		"markets":  len(markets),
		"rankings": rankings,
	}, nil
}

// marketReport recomputes the trailing-window report for every active
// market.
func (r *Registry) marketReport(ctx context.Context) (map[string]any, error) {
	since := time.Now().AddDate(0, 0, -reportPeriodDays)
	pairs, err := r.deps.Store.ReportPairs(ctx, since)
	if err != nil {
		return nil, err
	}

	built := 0
	trends := map[string]int{}
	for _, pair := range pairs {
		intel, err := r.deps.Reporter.BuildReport(ctx, pair[0], pair[1], reportPeriodDays)
		if err != nil {
			zap.L().Error("market report failed",
				zap.String("component", "tasks"),
				zap.String("state", pair[0]),
				zap.String("line", pair[1]),
				zap.Error(err))
			continue
		}
		built++
		trends[intel.MarketTrend]++
	}
	return map[string]any{"markets": len(pairs), "reports": built, "trends": trends}, nil
}

// staleDataCheck retires current profiles that have not been recomputed in
// 90 days, so consumers never act on dead data.
func (r *Registry) staleDataCheck(ctx context.Context) (map[string]any, error) {
	retired, err := r.deps.Profiler.RetireStale(ctx, time.Now().Add(-staleProfileAge))
	if err != nil {
		return nil, err
	}
	return map[string]any{"retired": len(retired)}, nil
}

// healthCheck reports pipeline health: database reachability, parse
// backlog, stuck scrape runs, and lingering high-severity alerts.
func (r *Registry) healthCheck(ctx context.Context) (map[string]any, error) {
	summary := map[string]any{}

	if err := r.deps.Store.Ping(ctx); err != nil {
		summary["status"] = "unhealthy"
		summary["database"] = err.Error()
		return summary, nil
	}
	summary["database"] = "ok"

	degraded := false
	if backlog, err := r.deps.Store.UnparsedBacklog(ctx); err == nil {
		summary["parse_backlog"] = backlog
		if backlog > backlogDegradedAt {
			degraded = true
		}
	} else {
		summary["parse_backlog"] = err.Error()
		degraded = true
	}

	if stuck, err := r.deps.Store.StuckScrapeRuns(ctx, time.Now().Add(-stuckScrapeAge)); err == nil {
		summary["stuck_scrapes"] = stuck
		if stuck > 0 {
			degraded = true
		}
	} else {
		summary["stuck_scrapes"] = err.Error()
		degraded = true
	}

	if unacked, err := r.deps.Store.UnackedHighSeverityCount(ctx, time.Now().Add(-unackedAlertAge)); err == nil {
		summary["unacked_high_alerts"] = unacked
		if unacked > 0 {
			degraded = true
		}
	} else {
		summary["unacked_high_alerts"] = err.Error()
		degraded = true
	}

	if degraded {
		summary["status"] = "degraded"
	} else {
		summary["status"] = "healthy"
	}
	return summary, nil
}
