package parser

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func reviewRun(t *testing.T) (*run, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	svc := NewService(store.New(mock), nil, nil,
		config.AnthropicConfig{},
		config.ParseConfig{ReviewThreshold: 0.70, HighPriorityCutoff: 0.50})
	return &run{svc: svc, doc: store.FilingDocument{ID: "doc-1"}, itemsByKind: map[string]int{}}, mock
}

func TestRecordRoutesLowConfidenceAsHigh(t *testing.T) {
	r, mock := reviewRun(t)

	mock.ExpectExec("INSERT INTO hermes_parse_review_queue").
		WithArgs("doc-1", "rate_table[page=3]", "base_rate", 0.45, "high").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r.record(context.Background(), "rate_table[page=3]", "base_rate", 0.45)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRoutesMidConfidenceAsMedium(t *testing.T) {
	r, mock := reviewRun(t)

	mock.ExpectExec("INSERT INTO hermes_parse_review_queue").
		WithArgs("doc-1", "rule[2]", "prior losses", 0.65, "medium").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r.record(context.Background(), "rule[2]", "prior losses", 0.65)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSkipsConfidentFields(t *testing.T) {
	r, mock := reviewRun(t)

	r.record(context.Background(), "form.title", "Businessowners Policy", 0.80)

	assert.Equal(t, []float64{0.80}, r.scores, "confidence still counts toward the parse average")
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing at or above the threshold is enqueued")
}
