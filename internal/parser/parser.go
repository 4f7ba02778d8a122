// Package parser turns classified filing documents into structured rate,
// rule, and form rows via LLM extraction with confidence scoring and
// review-queue routing.
package parser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/pkg/anthropic"
)

// Parse statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// ParseResult summarizes one document parse.
type ParseResult struct {
	Status        string
	ItemsByKind   map[string]int
	ConfidenceAvg float64
	ConfidenceMin float64
	AICalls       int
	TokensIn      int64
	TokensOut     int64
	CostUSD       float64
	Errors        []string
	Warnings      []string
	DurationMS    int64
}

// Service routes documents to type-specific parsers and owns the shared
// plumbing: model calls with retry, confidence tracking, review routing, and
// the parse log.
type Service struct {
	store     *store.Store
	ai        anthropic.Client
	extractor extract.Extractor
	aiCfg     config.AnthropicConfig
	parseCfg  config.ParseConfig
}

// NewService builds a parser service.
func NewService(st *store.Store, ai anthropic.Client, extractor extract.Extractor, aiCfg config.AnthropicConfig, parseCfg config.ParseConfig) *Service {
	return &Service{store: st, ai: ai, extractor: extractor, aiCfg: aiCfg, parseCfg: parseCfg}
}

// ParseDocument extracts text from the document's PDF, classifies it, runs the
// matching parser, and records the outcome. The parse log is written on every
// path, including panics in the extraction code, so a crash still produces a
// row. Only completed and partial parses flip the document's parsed flag.
func (s *Service) ParseDocument(ctx context.Context, doc store.FilingDocument) (result ParseResult) {
	start := time.Now()
	run := &run{
		svc:         s,
		doc:         doc,
		itemsByKind: map[string]int{},
	}
	parserType := "unknown"

	defer func() {
		result = run.result(StatusFailed)
		if run.status != "" {
			result.Status = run.status
		}
		result.DurationMS = time.Since(start).Milliseconds()
		result.CostUSD = run.usage.EstimateCost(s.aiCfg.Model)

		if err := s.store.InsertParseLog(ctx, store.ParseLog{
			DocumentID:    doc.ID,
			ParserType:    parserType,
			Status:        result.Status,
			ItemsByKind:   result.ItemsByKind,
			ConfidenceAvg: result.ConfidenceAvg,
			ConfidenceMin: result.ConfidenceMin,
			AICalls:       result.AICalls,
			AITokensIn:    result.TokensIn,
			AITokensOut:   result.TokensOut,
			CostUSD:       result.CostUSD,
			Errors:        result.Errors,
			Warnings:      result.Warnings,
			DurationMS:    result.DurationMS,
		}); err != nil {
			zap.L().Error("parse log write failed",
				zap.String("component", "parser"),
				zap.String("document_id", doc.ID),
				zap.Error(err))
		}

		if result.Status == StatusCompleted || result.Status == StatusPartial {
			if err := s.store.MarkParsed(ctx, doc.ID, result.ConfidenceAvg); err != nil {
				zap.L().Error("mark parsed failed",
					zap.String("component", "parser"),
					zap.String("document_id", doc.ID),
					zap.Error(err))
			}
		}
	}()

	pages, err := s.extractor.ExtractPages(ctx, doc.LocalPath)
	if err != nil {
		run.fail("extract text: " + err.Error())
		return
	}

	docType := doc.DocumentType
	if docType == "" || docType == extract.TypeOther {
		cls := extract.Classify(doc.DocumentName, pages)
		docType = cls.Type
		run.warnings = append(run.warnings, cls.Warnings...)
	}
	parserType = docType

	switch docType {
	case extract.TypeRate:
		run.parseRate(ctx, pages)
	case extract.TypeRule:
		run.parseRule(ctx, pages)
	case extract.TypeForm:
		run.parseForm(ctx, pages)
	default:
		// Nothing extractable; mark completed so the document is not
		// reclaimed on every run.
		run.warnings = append(run.warnings, "unclassifiable document, skipped")
		run.status = StatusCompleted
	}
	return
}

// run carries the mutable state of one document parse.
type run struct {
	svc         *Service
	doc         store.FilingDocument
	status      string
	itemsByKind map[string]int
	scores      []float64
	aiCalls     int
	usage       anthropic.TokenUsage
	errors      []string
	warnings    []string
}

func (r *run) fail(msg string) {
	r.errors = append(r.errors, msg)
	r.status = StatusFailed
}

// settle derives the final status from the error/item balance: clean → completed,
// some extractions landed despite errors → partial, nothing landed → failed.
func (r *run) settle() {
	total := 0
	for _, n := range r.itemsByKind {
		total += n
	}
	switch {
	case len(r.errors) == 0:
		r.status = StatusCompleted
	case total > 0:
		r.status = StatusPartial
	default:
		r.status = StatusFailed
	}
}

func (r *run) result(fallback string) ParseResult {
	res := ParseResult{
		Status:      fallback,
		ItemsByKind: r.itemsByKind,
		AICalls:     r.aiCalls,
		TokensIn:    r.usage.InputTokens,
		TokensOut:   r.usage.OutputTokens,
		Errors:      r.errors,
		Warnings:    r.warnings,
	}
	if len(r.scores) > 0 {
		min, sum := r.scores[0], 0.0
		for _, s := range r.scores {
			sum += s
			if s < min {
				min = s
			}
		}
		res.ConfidenceAvg = sum / float64(len(r.scores))
		res.ConfidenceMin = min
	}
	return res
}

// record tracks a field's confidence and routes it to the review queue when it
// falls below the threshold. The queue write is fire-and-forget: a failure is
// logged and never fails the parse.
func (r *run) record(ctx context.Context, fieldPath, fieldValue string, confidence float64) {
	r.scores = append(r.scores, confidence)

	cfg := r.svc.parseCfg
	if confidence >= cfg.ReviewThreshold {
		return
	}
	priority := "medium"
	if confidence < cfg.HighPriorityCutoff {
		priority = "high"
	}
	if err := r.svc.store.EnqueueReview(ctx, store.ReviewItem{
		DocumentID: r.doc.ID,
		FieldPath:  fieldPath,
		FieldValue: fieldValue,
		Confidence: confidence,
		Priority:   priority,
	}); err != nil {
		zap.L().Warn("review enqueue failed",
			zap.String("component", "parser"),
			zap.String("document_id", r.doc.ID),
			zap.String("field", fieldPath),
			zap.Error(err))
	}
}

// callModel sends one extraction prompt under the shared LLM retry policy and
// accumulates usage. Bad-output errors come back unretried.
func (r *run) callModel(ctx context.Context, system []anthropic.SystemBlock, prompt string) (string, error) {
	cfg := resilience.LLMRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		r.aiCalls++
		return r.svc.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.svc.aiCfg.Model,
			MaxTokens: r.svc.aiCfg.MaxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", err
	}
	r.usage.Add(resp.Usage)
	return resp.Text(), nil
}
