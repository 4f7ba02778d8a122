package scrape

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/portal"
	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// How far back the listing search reaches when a state has never been
// scraped.
const initialLookback = 24 * 30 * 24 * time.Hour

// Orchestrator runs the scrape passes for enabled states.
type Orchestrator struct {
	st          *store.Store
	browser     *portal.Browser
	cfg         config.ScrapeConfig
	portalCfg   config.PortalConfig
	storageRoot string
	limiter     *rate.Limiter
}

// Summary reports one state's scrape outcome.
type Summary struct {
	State        string
	FilingsFound int
	Details      int
	Documents    int
	Skipped      []string
	Errors       []string
}

// New builds an orchestrator. Zero-value tuning fields get the defaults the
// portal tolerates.
func New(st *store.Store, browser *portal.Browser, cfg config.ScrapeConfig, portalCfg config.PortalConfig, storageRoot string) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.RestartEvery <= 0 {
		cfg.RestartEvery = 200
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 18
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	delay := time.Duration(cfg.DelaySecs) * time.Second
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Orchestrator{
		st:          st,
		browser:     browser,
		cfg:         cfg,
		portalCfg:   portalCfg,
		storageRoot: storageRoot,
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
	}
}

// RunAll scrapes every enabled state with one browser lifetime. A state's
// failure is recorded in its summary and the run moves on.
func (o *Orchestrator) RunAll(ctx context.Context) ([]Summary, error) {
	states, err := o.st.EnabledStates(ctx)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}

	if err := o.browser.Start(); err != nil {
		return nil, err
	}
	defer o.browser.Close()

	summaries := make([]Summary, 0, len(states))
	for _, state := range states {
		summary, err := o.RunState(ctx, state)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			zap.L().Error("state scrape failed",
				zap.String("component", "scrape"),
				zap.String("state", state),
				zap.Error(err))
		}
		summaries = append(summaries, summary)
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
	}
	return summaries, nil
}

// RunState runs the listing pass then the detail pass for one state,
// bracketed by a scrape log row. The high-water mark only advances when the
// listing pass succeeds, so a failed run is re-covered next time.
func (o *Orchestrator) RunState(ctx context.Context, state string) (Summary, error) {
	summary := Summary{State: state}
	started := time.Now()

	logID, err := o.st.StartScrapeLog(ctx, state, "incremental")
	if err != nil {
		return summary, err
	}

	zap.L().Info("scrape started",
		zap.String("component", "scrape"),
		zap.String("state", state))

	found, err := o.listingPass(ctx, state)
	summary.FilingsFound = found
	if err != nil {
		_ = o.st.FailScrapeLog(ctx, logID, err.Error())
		return summary, err
	}
	if err := o.st.AdvanceLastScraped(ctx, state, started); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}

	if err := o.detailPass(ctx, state, &summary); err != nil {
		_ = o.st.FailScrapeLog(ctx, logID, err.Error())
		return summary, err
	}

	err = o.st.CompleteScrapeLog(ctx, logID, summary.FilingsFound, summary.Details, summary.Documents,
		summary.Errors, map[string]any{"skipped": summary.Skipped, "duration_secs": int(time.Since(started).Seconds())})
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}

	zap.L().Info("scrape completed",
		zap.String("component", "scrape"),
		zap.String("state", state),
		zap.Int("found", summary.FilingsFound),
		zap.Int("details", summary.Details),
		zap.Int("documents", summary.Documents),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

// listingPass searches the portal and upserts one skeletal filing row per
// result. Detail scraping fills them in later.
func (o *Orchestrator) listingPass(ctx context.Context, state string) (int, error) {
	nav := portal.NewNavigator(o.browser, o.portalCfg)
	if err := o.establish(ctx, nav); err != nil {
		return 0, err
	}

	dateFrom, err := o.st.LastScrapedAt(ctx, state)
	if err != nil {
		return 0, err
	}
	if dateFrom == nil {
		d := time.Now().Add(-initialLookback)
		dateFrom = &d
	}

	if err := nav.RunSearch(portal.SearchFilter{
		BusinessType: "Property & Casualty",
		DateFrom:     dateFrom,
	}); err != nil {
		return 0, eris.Wrap(err, "scrape: listing search")
	}

	found := 0
	for pageNum := 1; pageNum <= o.cfg.MaxListingPages || o.cfg.MaxListingPages <= 0; pageNum++ {
		rows, err := nav.ParseResultsPage()
		if err != nil {
			return found, eris.Wrapf(err, "scrape: listing page %d", pageNum)
		}
		for _, row := range rows {
			_, err := o.st.UpsertFiling(ctx, store.Filing{
				SERFFTracking: row.SERFFTracking,
				State:         state,
				FilingType:    portal.NormalizeFilingType(row.FilingType),
				Status:        portal.NormalizeStatus(row.Status),
				FiledDate:     row.FiledDate,
				EffectiveDate: row.EffectiveDate,
				RawMetadata:   map[string]any{"listing_company": row.CompanyName},
			})
			if err != nil {
				return found, err
			}
			found++
		}

		more, err := nav.ClickNextPage()
		if err != nil {
			return found, eris.Wrapf(err, "scrape: advance past page %d", pageNum)
		}
		if !more {
			break
		}
	}
	return found, nil
}

// establish brings up a portal session, riding out bot interstitials with
// the configured cooldown and a fresh browser.
func (o *Orchestrator) establish(ctx context.Context, nav *portal.Navigator) error {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		lastErr = nav.EstablishSession(ctx)
		if lastErr == nil {
			return nil
		}
		if resilience.IsKind(lastErr, resilience.KindPortalBlocked) {
			if err := nav.CooldownOnBlock(ctx); err != nil {
				return err
			}
			if err := o.browser.Restart(); err != nil {
				return err
			}
			continue
		}
		if !resilience.IsTransient(lastErr) {
			return lastErr
		}
		time.Sleep(time.Duration(attempt+1) * 2 * time.Second)
	}
	return eris.Wrap(lastErr, "scrape: establish session")
}

// pendingTrackings returns the sorted trackings needing a detail pass, with
// their filing ids.
func (o *Orchestrator) pendingTrackings(ctx context.Context, state string) ([]string, map[string]string, error) {
	ids, err := o.st.FilingIDsByState(ctx, state)
	if err != nil {
		return nil, nil, err
	}
	done, err := o.st.ScrapedTrackings(ctx, state)
	if err != nil {
		return nil, nil, err
	}

	var pending []string
	for tracking := range ids {
		if !done[tracking] {
			pending = append(pending, tracking)
		}
	}
	sort.Strings(pending)
	return pending, ids, nil
}
