package parser

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/pkg/anthropic"
)

// cannedClient returns a fixed model response for every call.
type cannedClient struct {
	text string
}

func (c cannedClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.text}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, OutputTokens: 220},
	}, nil
}

const ruleChunkResponse = `{
  "rules": [
    {"rule_type": "eligibility", "category": "prior losses",
     "full_text": "Risks with more than two losses in three years are ineligible.",
     "confidence": 0.92, "conditions": []}
  ],
  "coverage_options": [
    {"name": "Equipment Breakdown", "description": "Optional endorsement", "confidence": 0.88}
  ],
  "credits_surcharges": [
    {"name": "Sprinklered Building", "kind": "credit", "amount": 10, "unit": "percent", "confidence": 0.90},
    {"name": "Mystery Modifier", "kind": "penalty", "amount": 5, "unit": "percent", "confidence": 0.90}
  ],
  "exclusions": [
    {"description": "No coverage for flood damage.", "confidence": 0.85}
  ]
}`

func TestParseRulePersistsFlatExtracts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO hermes_underwriting_rules").
		WithArgs("doc-1", "filing-1", "eligibility", "prior losses", pgxmock.AnyArg(), 0.92, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("rule-1"))
	mock.ExpectCommit()
	mock.ExpectRollback()
	mock.ExpectCopyFrom(pgx.Identifier{"hermes_coverage_options"},
		[]string{"document_id", "filing_id", "name", "description", "confidence", "source_page"}).
		WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"hermes_credit_surcharges"},
		[]string{"document_id", "filing_id", "name", "kind", "amount", "unit", "confidence", "source_page"}).
		WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"hermes_exclusions"},
		[]string{"document_id", "filing_id", "description", "confidence", "source_page"}).
		WillReturnResult(1)

	svc := NewService(store.New(mock), cannedClient{text: ruleChunkResponse}, nil,
		config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 4096},
		config.ParseConfig{ReviewThreshold: 0.70, HighPriorityCutoff: 0.50})
	r := &run{svc: svc, doc: store.FilingDocument{ID: "doc-1", FilingID: "filing-1"}, itemsByKind: map[string]int{}}

	r.parseRule(context.Background(), []extract.Page{{Number: 1, Text: "Rule 1. Prior losses. Risks with more than two losses in three years are ineligible."}})

	assert.Equal(t, StatusCompleted, r.status)
	assert.Equal(t, 1, r.itemsByKind["rule"])
	assert.Equal(t, 1, r.itemsByKind["coverage_option"])
	assert.Equal(t, 1, r.itemsByKind["credit_surcharge"])
	assert.Equal(t, 1, r.itemsByKind["exclusion"])
	assert.Len(t, r.warnings, 1, "the unrecognized modifier kind is dropped with a warning")
	assert.NoError(t, mock.ExpectationsWereMet())
}
