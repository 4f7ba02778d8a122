package parser

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hermes-intel/hermes/internal/resilience"
)

// cleanJSON attempts to extract a JSON value from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	text = strings.TrimSpace(text)

	// Find the outermost JSON value, object or array, whichever starts first.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	case objStart >= 0:
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	}

	return strings.TrimSpace(text)
}

// decodeObject unmarshals a model response into out. A failure is tagged
// llm_bad_output: deterministic for the given response, never retried.
func decodeObject(text string, out any) error {
	cleaned := cleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return resilience.WithKind(resilience.KindLLMBadOutput,
			eris.Wrap(err, "parser: model returned unparseable JSON"))
	}
	return nil
}
