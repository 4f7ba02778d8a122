package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hermes-intel/hermes/internal/appetite"
	"github.com/hermes-intel/hermes/internal/db"
	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/parser"
	"github.com/hermes-intel/hermes/internal/portal"
	"github.com/hermes-intel/hermes/internal/pricing"
	"github.com/hermes-intel/hermes/internal/report"
	"github.com/hermes-intel/hermes/internal/scrape"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/internal/tasks"
	anthropicpkg "github.com/hermes-intel/hermes/pkg/anthropic"
)

// pipelineEnv holds the initialized store, clients, and engines the
// subcommands share.
type pipelineEnv struct {
	Pool     *pgxpool.Pool
	Store    *store.Store
	Browser  *portal.Browser
	Scraper  *scrape.Orchestrator
	Parser   *parser.Service
	Detector *appetite.Detector
	Profiler *appetite.Profiler
	Reporter *report.Reporter
	Alerter  *report.Alerter
	PMI      *pricing.PMIEngine
	Title    *pricing.TitleEngine
	Registry *tasks.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Pool != nil {
		pe.Pool.Close()
	}
}

// initPipeline connects the database, runs pending migrations, and wires up
// every engine. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	st := store.New(pool)

	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewPdfToText(cfg.Parse.PdfToTextPath)
	parserSvc := parser.NewService(st, aiClient, extractor, cfg.Anthropic, cfg.Parse)

	browser := portal.NewBrowser(cfg.Portal)
	scraper := scrape.New(st, browser, cfg.Scrape, cfg.Portal, cfg.Storage.Root)

	detector := appetite.NewDetector(st)
	profiler := appetite.NewProfiler(st)
	reporter := report.NewReporter(st)
	alerter := report.NewAlerter(st)

	env := &pipelineEnv{
		Pool:     pool,
		Store:    st,
		Browser:  browser,
		Scraper:  scraper,
		Parser:   parserSvc,
		Detector: detector,
		Profiler: profiler,
		Reporter: reporter,
		Alerter:  alerter,
		PMI:      pricing.NewPMIEngine(st, cfg.Pricing),
		Title:    pricing.NewTitleEngine(st),
	}
	env.Registry = tasks.NewRegistry(tasks.Deps{
		Store:    st,
		Scraper:  scraper,
		Parser:   parserSvc,
		Detector: detector,
		Profiler: profiler,
		Reporter: reporter,
		Alerter:  alerter,
		ParseCfg: cfg.Parse,
	})
	return env, nil
}
