package appetite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampStrengthRateDecrease(t *testing.T) {
	// strength = |pct| / 2, clamped to [1, 10]
	assert.Equal(t, 5, clampStrength(10.0/2, 1, 10), "-10%% change")
	assert.Equal(t, 10, clampStrength(24.0/2, 1, 10), "-24%% change clamps at 10")
	assert.Equal(t, 3, clampStrength(5.0/2, 1, 10), "-5%% threshold change")
}

func TestClampStrengthRateIncrease(t *testing.T) {
	// strength = pct / 3, clamped to [1, 10]
	assert.Equal(t, 3, clampStrength(10.0/3, 1, 10))
	assert.Equal(t, 10, clampStrength(45.0/3, 1, 10))
	assert.Equal(t, 1, clampStrength(1.0/3, 1, 10), "floors at 1")
}

func TestClampStrengthWithdrawals(t *testing.T) {
	// strength = count + 3, clamped to [5, 10]
	assert.Equal(t, 5, clampStrength(1+3, 5, 10), "one withdrawal floors at 5")
	assert.Equal(t, 7, clampStrength(4+3, 5, 10))
	assert.Equal(t, 10, clampStrength(9+3, 5, 10))
}

func TestDiffStrings(t *testing.T) {
	added, removed := diffStrings([]string{"A", "B", "C"}, []string{"B", "C", "D", "E"})
	assert.Equal(t, []string{"D", "E"}, added)
	assert.Equal(t, []string{"A"}, removed)
}

func TestDiffStringsNoChange(t *testing.T) {
	added, removed := diffStrings([]string{"A", "B"}, []string{"B", "A"})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestDiffStringsEmptyPrior(t *testing.T) {
	added, removed := diffStrings(nil, []string{"A"})
	assert.Equal(t, []string{"A"}, added)
	assert.Empty(t, removed)
}

func TestCompetitiveness(t *testing.T) {
	assert.InDelta(t, 50.0, Competitiveness(1.0, 1.0), 1e-9, "at market")
	assert.InDelta(t, 75.0, Competitiveness(0.5, 1.0), 1e-9, "half of market")
	assert.InDelta(t, 25.0, Competitiveness(1.5, 1.0), 1e-9)
	assert.InDelta(t, 0.0, Competitiveness(3.0, 1.0), 1e-9, "clamped low")
	assert.InDelta(t, 99.995, Competitiveness(0.0001, 1.0), 1e-6, "approaches 100")
}
