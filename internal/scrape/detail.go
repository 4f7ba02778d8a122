package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hermes-intel/hermes/internal/portal"
	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// Restarts tolerated at one batch position before the batch is skipped.
const maxBatchRestarts = 3

// errBlocked aborts a batch when any worker hits the bot interstitial.
var errBlocked = eris.New("scrape: portal blocked mid-batch")

// detailResult is one filing's harvested detail, buffered until the batch
// flush.
type detailResult struct {
	tracking string
	filingID string
	state    string
	status   string // completed | unauthorized | not_found
	meta     *portal.DetailMetadata
	docs     []store.FilingDocument
}

// detailPass walks every unscraped filing, in parallel batches. Results land
// in one transaction per batch, so a crash loses at most one batch of work.
// The browser is recycled on a schedule and after error bursts; a batch that
// cannot get through after three restarts is skipped and reported.
func (o *Orchestrator) detailPass(ctx context.Context, state string, summary *Summary) error {
	pending, ids, err := o.pendingTrackings(ctx, state)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	zap.L().Info("detail pass starting",
		zap.String("component", "scrape"),
		zap.String("state", state),
		zap.Int("pending", len(pending)))

	navs, err := o.buildNavigators(ctx)
	if err != nil {
		return err
	}

	consecutiveErrors := 0
	processedSinceRestart := 0

	for start := 0; start < len(pending); start += o.cfg.FlushEvery {
		end := start + o.cfg.FlushEvery
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		restartsHere := 0
		for {
			results, failures := o.runBatch(ctx, navs, state, batch, ids, &consecutiveErrors)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			blocked := false
			for _, f := range failures {
				if errors.Is(f, errBlocked) {
					blocked = true
				} else {
					summary.Errors = append(summary.Errors, f.Error())
				}
			}

			if blocked || consecutiveErrors >= o.cfg.ErrorThreshold {
				restartsHere++
				if restartsHere >= maxBatchRestarts {
					zap.L().Warn("skipping batch after repeated restarts",
						zap.String("component", "scrape"),
						zap.String("state", state),
						zap.Strings("trackings", batch))
					summary.Skipped = append(summary.Skipped, batch...)
					consecutiveErrors = 0
					break
				}
				if blocked {
					if err := navs[0].CooldownOnBlock(ctx); err != nil {
						return err
					}
				}
				if navs, err = o.recycleBrowser(ctx); err != nil {
					return err
				}
				consecutiveErrors = 0
				processedSinceRestart = 0
				continue // rewind: same batch again
			}

			if err := o.flush(ctx, results); err != nil {
				return err
			}
			for _, r := range results {
				summary.Details++
				summary.Documents += len(r.docs)
			}
			processedSinceRestart += len(batch)
			break
		}

		if processedSinceRestart >= o.cfg.RestartEvery {
			if navs, err = o.recycleBrowser(ctx); err != nil {
				return err
			}
			processedSinceRestart = 0
		}
	}
	return nil
}

// runBatch fans a batch out over the navigator pool. Item failures never
// abort the batch; they are returned for the caller to weigh against the
// error threshold.
func (o *Orchestrator) runBatch(ctx context.Context, navs []*portal.Navigator, state string, batch []string, ids map[string]string, consecutiveErrors *int) ([]detailResult, []error) {
	navPool := make(chan *portal.Navigator, len(navs))
	for _, nav := range navs {
		navPool <- nav
	}

	var (
		mu       sync.Mutex
		results  []detailResult
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for _, tracking := range batch {
		tracking := tracking
		g.Go(func() error {
			nav := <-navPool
			defer func() { navPool <- nav }()

			res, err := o.scrapeOne(gctx, nav, state, tracking, ids[tracking])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				*consecutiveErrors++
				if resilience.IsKind(err, resilience.KindPortalBlocked) {
					failures = append(failures, errBlocked)
					return errBlocked // stop the group, the batch reruns
				}
				failures = append(failures, eris.Wrap(err, tracking))
				return nil
			}
			*consecutiveErrors = 0
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()
	return results, failures
}

// scrapeOne opens one filing's detail page, harvests metadata, and downloads
// its documents. Permanently inaccessible filings come back as a result with
// a failure status rather than an error, so they are marked and never
// revisited.
func (o *Orchestrator) scrapeOne(ctx context.Context, nav *portal.Navigator, state, tracking, filingID string) (detailResult, error) {
	res := detailResult{tracking: tracking, filingID: filingID, state: state, status: "completed"}

	if err := o.limiter.Wait(ctx); err != nil {
		return res, err
	}

	if err := nav.OpenDetail(tracking); err != nil {
		if resilience.IsKind(err, resilience.KindPortalPermanent) {
			if errors.Is(err, portal.ErrNotFound) {
				res.status = "not_found"
			} else {
				res.status = "unauthorized"
			}
			zap.L().Debug("filing permanently inaccessible",
				zap.String("component", "scrape"),
				zap.String("tracking", tracking),
				zap.String("status", res.status))
			return res, nil
		}
		return res, err
	}

	meta, err := nav.ExtractDetailMetadata()
	if err != nil {
		return res, err
	}
	res.meta = &meta

	links, err := nav.DocumentLinks()
	if err != nil {
		return res, err
	}

	tmpDir := filepath.Join(o.storageRoot, ".downloads")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return res, eris.Wrap(err, "scrape: temp download dir")
	}

	for _, link := range links {
		name, err := SanitizeFilename(link.Name)
		if err != nil {
			zap.L().Warn("unusable document name",
				zap.String("component", "scrape"),
				zap.String("tracking", tracking),
				zap.String("name", link.Name))
			continue
		}
		dest := DocumentPath(o.storageRoot, state, meta.NAICCode, tracking, name)
		if AlreadyDownloaded(dest) {
			continue
		}

		tmp, err := nav.Download(link, tmpDir)
		if err != nil {
			zap.L().Warn("document download failed",
				zap.String("component", "scrape"),
				zap.String("tracking", tracking),
				zap.String("document", name),
				zap.Error(err))
			continue
		}
		size, sum, err := SaveFile(tmp, dest)
		if err != nil {
			zap.L().Warn("document save failed",
				zap.String("component", "scrape"),
				zap.String("tracking", tracking),
				zap.String("document", name),
				zap.Error(err))
			continue
		}
		res.docs = append(res.docs, store.FilingDocument{
			FilingID:       filingID,
			DocumentName:   name,
			LocalPath:      dest,
			FileSizeBytes:  size,
			MIMEType:       MIMEForName(name),
			ChecksumSHA256: sum,
		})
	}
	return res, nil
}

// flush lands one batch of detail results in a single transaction.
func (o *Orchestrator) flush(ctx context.Context, results []detailResult) error {
	if len(results) == 0 {
		return nil
	}
	return o.st.Session(ctx, func(ctx context.Context, tx *store.Store) error {
		for _, r := range results {
			if r.meta != nil {
				var carrierID *string
				if r.meta.NAICCode != "" {
					id, err := tx.UpsertCarrier(ctx, store.Carrier{
						NAICCode:  r.meta.NAICCode,
						LegalName: portal.NormalizeCompanyName(r.meta.CompanyName),
					})
					if err != nil {
						return err
					}
					carrierID = &id
				}

				raw := make(map[string]any, len(r.meta.Fields))
				for k, v := range r.meta.Fields {
					raw[k] = v
				}
				if _, err := tx.UpsertFiling(ctx, store.Filing{
					CarrierID:            carrierID,
					SERFFTracking:        r.tracking,
					State:                r.state,
					LineOfBusiness:       r.meta.LineOfBusiness,
					FilingType:           portal.NormalizeFilingType(r.meta.FilingType),
					Status:               portal.NormalizeStatus(r.meta.Status),
					FiledDate:            r.meta.FiledDate,
					EffectiveDate:        r.meta.EffectiveDate,
					DispositionDate:      r.meta.DispositionDate,
					OverallRateChangePct: r.meta.OverallRateChangePct,
					RawMetadata:          raw,
				}); err != nil {
					return err
				}

				for _, doc := range r.docs {
					if _, err := tx.UpsertDocument(ctx, doc); err != nil {
						return err
					}
				}
			}
			if err := tx.SetFilingScrapeStatus(ctx, r.filingID, r.status); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildNavigators gives each worker its own navigator with an established
// session.
func (o *Orchestrator) buildNavigators(ctx context.Context) ([]*portal.Navigator, error) {
	navs := make([]*portal.Navigator, o.cfg.Parallelism)
	for i := range navs {
		navs[i] = portal.NewNavigator(o.browser, o.portalCfg)
		if err := o.establish(ctx, navs[i]); err != nil {
			return nil, err
		}
	}
	return navs, nil
}

// recycleBrowser restarts Chrome and rebuilds the navigator pool. Old
// navigators are dead after this.
func (o *Orchestrator) recycleBrowser(ctx context.Context) ([]*portal.Navigator, error) {
	zap.L().Info("recycling browser",
		zap.String("component", "scrape"),
		zap.Int("restarts", o.browser.Restarts()+1))
	if err := o.browser.Restart(); err != nil {
		return nil, err
	}
	return o.buildNavigators(ctx)
}
