package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRateChildrenPremiumAlgorithm(t *testing.T) {
	r, mock := reviewRun(t)

	step := 2
	resp := rateTableResp{
		Classification: "premium_algorithm",
		Confidence:     0.9,
		Rows: []rateRowResp{
			{Description: "Multiply the base rate by the territory factor"},
			{Description: "Apply the schedule modifier", StepOrder: &step},
			{},
		},
	}

	children := r.buildRateChildren(context.Background(), resp, 7)

	require.Len(t, children.Algorithm, 2, "rows without a description are dropped")
	assert.Equal(t, 1, children.Algorithm[0].StepOrder, "step order defaults to the row position")
	assert.Equal(t, "Multiply the base rate by the territory factor", children.Algorithm[0].Description)
	assert.Equal(t, 2, children.Algorithm[1].StepOrder)
	assert.Equal(t, 7, children.Algorithm[1].SourcePage)
	assert.Equal(t, 2, r.itemsByKind["premium_algorithm"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidTableType(t *testing.T) {
	for _, ok := range []string{"base_rate", "rating_factor", "territory", "class_mapping", "premium_algorithm"} {
		assert.True(t, validTableType(ok), ok)
	}
	assert.False(t, validTableType("loss_cost"))
	assert.False(t, validTableType(""))
}

func TestLooksTabular(t *testing.T) {
	table := "Class  Territory  Rate\n0042   001        1.25\n0042   002        1.40\n5183   001        0.88"
	assert.True(t, looksTabular(table))
	assert.False(t, looksTabular("This filing revises our rates effective January 1."))
}
