// Package tasks is the operational surface of the pipeline: a registry of
// named, idempotent tasks that schedulers and the trigger server invoke.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/appetite"
	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/parser"
	"github.com/hermes-intel/hermes/internal/report"
	"github.com/hermes-intel/hermes/internal/scrape"
	"github.com/hermes-intel/hermes/internal/store"
)

// Task names.
const (
	TaskDailyScrape       = "daily_scrape_incremental"
	TaskParseNewFilings   = "parse_new_filings"
	TaskDetectShifts      = "detect_appetite_shifts"
	TaskRecomputeProfiles = "recompute_appetite_profiles"
	TaskMarketReport      = "generate_market_report"
	TaskStaleDataCheck    = "stale_data_check"
	TaskHealthCheck       = "health_check"
)

// ErrAlreadyRunning reports a second concurrent invocation of the same task.
// Tasks are single-flight: re-running one that is still going is a no-op,
// not a second copy.
var ErrAlreadyRunning = eris.New("tasks: already running")

// ErrUnknownTask reports a task name with no registration.
var ErrUnknownTask = eris.New("tasks: unknown task")

// Func is one runnable task. The summary map is what schedulers log.
type Func func(ctx context.Context) (map[string]any, error)

// Result is one completed task run.
type Result struct {
	Task       string         `json:"task"`
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Summary    map[string]any `json:"summary"`
}

// Deps carries everything the tasks touch.
type Deps struct {
	Store    *store.Store
	Scraper  *scrape.Orchestrator
	Parser   *parser.Service
	Detector *appetite.Detector
	Profiler *appetite.Profiler
	Reporter *report.Reporter
	Alerter  *report.Alerter
	ParseCfg config.ParseConfig
}

// Registry holds the named tasks and enforces single-flight per name.
type Registry struct {
	deps  Deps
	tasks map[string]Func

	mu      sync.Mutex
	running map[string]bool
}

// NewRegistry builds the registry with the full task set.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{deps: deps, tasks: map[string]Func{}, running: map[string]bool{}}
	r.tasks[TaskDailyScrape] = r.dailyScrape
	r.tasks[TaskParseNewFilings] = r.parseNewFilings
	r.tasks[TaskDetectShifts] = r.detectShifts
	r.tasks[TaskRecomputeProfiles] = r.recomputeProfiles
	r.tasks[TaskMarketReport] = r.marketReport
	r.tasks[TaskStaleDataCheck] = r.staleDataCheck
	r.tasks[TaskHealthCheck] = r.healthCheck
	return r
}

// Names lists the registered tasks, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one task by name.
func (r *Registry) Run(ctx context.Context, name string) (Result, error) {
	fn, ok := r.tasks[name]
	if !ok {
		return Result{}, eris.Wrap(ErrUnknownTask, name)
	}

	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		return Result{}, eris.Wrap(ErrAlreadyRunning, name)
	}
	r.running[name] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, name)
		r.mu.Unlock()
	}()

	result := Result{
		Task:      name,
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	zap.L().Info("task started",
		zap.String("component", "tasks"),
		zap.String("task", name),
		zap.String("run_id", result.RunID))

	summary, err := fn(ctx)
	result.Summary = summary
	result.DurationMS = time.Since(result.StartedAt).Milliseconds()
	if err != nil {
		zap.L().Error("task failed",
			zap.String("component", "tasks"),
			zap.String("task", name),
			zap.String("run_id", result.RunID),
			zap.Int64("duration_ms", result.DurationMS),
			zap.Error(err))
		return result, err
	}

	zap.L().Info("task completed",
		zap.String("component", "tasks"),
		zap.String("task", name),
		zap.String("run_id", result.RunID),
		zap.Int64("duration_ms", result.DurationMS),
		zap.Any("summary", summary))
	return result, nil
}
