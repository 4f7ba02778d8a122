package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/resilience"
)

func TestCleanJSONStripsFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"prose before object", "Here is the extraction:\n{\"a\": 1}", `{"a": 1}`},
		{"prose after object", "{\"a\": 1}\nLet me know if you need more.", `{"a": 1}`},
		{"array before object text", "[{\"a\": 1}] trailing", `[{"a": 1}]`},
		{"already clean", `{"a": 1}`, `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Rate float64 `json:"rate"`
	}
	err := decodeObject("```json\n{\"rate\": 0.62}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, 0.62, out.Rate)
}

func TestDecodeObjectBadOutput(t *testing.T) {
	var out map[string]any
	err := decodeObject("I could not find any tables in this document.", &out)
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindLLMBadOutput))
	assert.False(t, resilience.IsTransient(err), "bad model output must not be retried")
}
