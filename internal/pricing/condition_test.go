package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/resilience"
)

func TestParseConditionAndMatch(t *testing.T) {
	set, err := ParseCondition(json.RawMessage(
		`{"fico_min": 700, "ltv_max": 95, "occupancy_eq": "primary", "state_in": ["TX", "FL"]}`))
	require.NoError(t, err)
	require.Len(t, set, 4)

	attrs := Attributes{"fico": 720.0, "ltv": 92.0, "occupancy": "primary", "state": "TX"}
	assert.True(t, set.Matches(attrs))

	attrs["fico"] = 680.0
	assert.False(t, set.Matches(attrs), "fico below min")

	attrs["fico"] = 720.0
	attrs["state"] = "CA"
	assert.False(t, set.Matches(attrs), "state not in set")
}

func TestParseConditionBoundaryInclusive(t *testing.T) {
	set, err := ParseCondition(json.RawMessage(`{"ltv_min": 90, "ltv_max": 95}`))
	require.NoError(t, err)

	assert.True(t, set.Matches(Attributes{"ltv": 90.0}))
	assert.True(t, set.Matches(Attributes{"ltv": 95.0}))
	assert.False(t, set.Matches(Attributes{"ltv": 95.01}))
}

func TestParseConditionUnknownSuffix(t *testing.T) {
	_, err := ParseCondition(json.RawMessage(`{"fico_between": 700}`))
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindValidation))
}

func TestParseConditionEmpty(t *testing.T) {
	set, err := ParseCondition(nil)
	require.NoError(t, err)
	assert.True(t, set.Matches(Attributes{}))

	set, err = ParseCondition(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, set.Matches(Attributes{"anything": 1.0}))
}

func TestConditionMissingAttributeFailsClosed(t *testing.T) {
	set, err := ParseCondition(json.RawMessage(`{"dti_max": 43}`))
	require.NoError(t, err)
	assert.False(t, set.Matches(Attributes{"fico": 720.0}))
}

func TestConditionNumericEq(t *testing.T) {
	set, err := ParseCondition(json.RawMessage(`{"units_eq": 2}`))
	require.NoError(t, err)
	assert.True(t, set.Matches(Attributes{"units": 2}))
	assert.False(t, set.Matches(Attributes{"units": 3}))
}
