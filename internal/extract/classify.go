package extract

import (
	"strings"
)

// Document types recognized by the classifier.
const (
	TypeRate  = "rate"
	TypeRule  = "rule"
	TypeForm  = "form"
	TypeOther = "other"
)

// keyword weights per type, counted over the first pages. Filename hits weigh
// more than body hits because filing portals name documents deliberately.
var (
	rateKeywords = []string{"rate table", "base rate", "rating factor", "territory", "rate per", "premium calculation", "loss cost", "rate page", "rating plan"}
	ruleKeywords = []string{"underwriting", "eligibility", "eligible", "ineligible", "guideline", "rule", "shall not be written", "prohibited risk"}
	formKeywords = []string{"policy form", "endorsement", "coverage form", "declarations", "insuring agreement", "this endorsement changes", "edition date"}

	rateNameHints = []string{"rate", "rating", "loss cost", "premium"}
	ruleNameHints = []string{"rule", "underwriting", "eligibility", "guideline", "manual"}
	formNameHints = []string{"form", "endorsement", "policy", "dec page", "declarations"}
)

// firstPagesForClassify bounds how much text the classifier scans.
const firstPagesForClassify = 3

// ClassifyResult carries the guessed type and any classification warnings.
type ClassifyResult struct {
	Type     string
	Warnings []string
}

// Classify guesses the document type from the filename and the first pages of
// extracted text. Empty text (scanned PDFs) yields "other" with a warning so
// the parsers skip the document instead of burning model calls on it.
func Classify(filename string, pages []Page) ClassifyResult {
	var body strings.Builder
	for i, p := range pages {
		if i >= firstPagesForClassify {
			break
		}
		body.WriteString(strings.ToLower(p.Text))
		body.WriteByte('\n')
	}

	if strings.TrimSpace(body.String()) == "" {
		return ClassifyResult{
			Type:     TypeOther,
			Warnings: []string{"no extractable text (scanned or image-only PDF)"},
		}
	}

	name := strings.ToLower(filename)
	text := body.String()

	scores := map[string]int{
		TypeRate: keywordScore(text, rateKeywords) + 3*hintScore(name, rateNameHints),
		TypeRule: keywordScore(text, ruleKeywords) + 3*hintScore(name, ruleNameHints),
		TypeForm: keywordScore(text, formKeywords) + 3*hintScore(name, formNameHints),
	}

	best, bestScore := TypeOther, 0
	// Fixed iteration order keeps ties deterministic: rate > rule > form.
	for _, t := range []string{TypeRate, TypeRule, TypeForm} {
		if scores[t] > bestScore {
			best, bestScore = t, scores[t]
		}
	}
	return ClassifyResult{Type: best}
}

func keywordScore(text string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		score += strings.Count(text, kw)
	}
	return score
}

func hintScore(name string, hints []string) int {
	score := 0
	for _, h := range hints {
		if strings.Contains(name, h) {
			score++
		}
	}
	return score
}
