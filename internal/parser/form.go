package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/pkg/anthropic"
)

const formSystemText = "You are an insurance policy analyst summarizing the provisions of filed policy forms. Return only valid JSON matching the requested schema."

const formPrompt = `The following text is from a filed insurance policy form.

Form metadata already identified:
form_number: %s
edition_date: %s

Document text:
%s

Summarize each distinct provision. Return a JSON object:
{
  "form_type": "<policy | endorsement | declarations | application | other>",
  "title": "<form title>",
  "confidence": <0.0-1.0>,
  "provisions": [
    {"provision_type": "coverage_grant" | "exclusion" | "condition" | "definition",
     "summary": "<one-sentence summary>",
     "impact": "broadening" | "restricting" | "neutral",
     "confidence": <0.0-1.0>}
  ]
}`

// formPageBudget caps pages per model call for provision summarization.
const formPageBudget = 8

type formResp struct {
	FormType   string          `json:"form_type"`
	Title      string          `json:"title"`
	Confidence float64         `json:"confidence"`
	Provisions []provisionResp `json:"provisions"`
}

type provisionResp struct {
	ProvisionType string  `json:"provision_type"`
	Summary       string  `json:"summary"`
	Impact        string  `json:"impact"`
	Confidence    float64 `json:"confidence"`
}

// First-page metadata patterns. Form numbers follow carrier conventions like
// "CG 00 01 04 13" or "HO-3" or "WC000001A"; edition dates ride along as
// "(Ed. 04/13)" or trailing MM-YY pairs.
var (
	formNumberRe  = regexp.MustCompile(`(?m)^\s*([A-Z]{1,4}[- ]?\d{2,6}(?:[- ]\d{2}){0,3}[A-Z]?)\s*$`)
	editionDateRe = regexp.MustCompile(`(?i)\(?\s*Ed(?:ition|\.)?\s*(\d{1,2}[-/]\d{2,4})\s*\)?`)
)

// parseForm runs first-page regex metadata extraction, then summarizes
// provisions with the model.
func (r *run) parseForm(ctx context.Context, pages []extract.Page) {
	formNumber, editionDate := firstPageMetadata(pages)
	if formNumber != "" {
		r.record(ctx, "form.form_number", formNumber, 0.95)
	} else {
		r.record(ctx, "form.form_number", "", 0.30)
	}

	end := formPageBudget
	if end > len(pages) {
		end = len(pages)
	}
	var body strings.Builder
	for _, p := range pages[:end] {
		fmt.Fprintf(&body, "--- page %d ---\n%s\n", p.Number, p.Text)
	}

	system := anthropic.BuildCachedSystemBlocks(formSystemText)
	text, err := r.callModel(ctx, system, fmt.Sprintf(formPrompt, formNumber, editionDate, body.String()))
	if err != nil {
		r.fail("form summarization: " + err.Error())
		return
	}

	var resp formResp
	if err := decodeObject(text, &resp); err != nil {
		r.warnings = append(r.warnings, err.Error())
		r.settle()
		return
	}

	var provisions []store.FormProvision
	for i, p := range resp.Provisions {
		if !validProvisionType(p.ProvisionType) {
			r.warnings = append(r.warnings, fmt.Sprintf("provision %d: unknown type %q", i, p.ProvisionType))
			continue
		}
		impact := p.Impact
		if impact != "broadening" && impact != "restricting" {
			impact = "neutral"
		}
		provisions = append(provisions, store.FormProvision{
			ProvisionType: p.ProvisionType,
			Summary:       p.Summary,
			Impact:        impact,
			Confidence:    p.Confidence,
			SourcePage:    1,
		})
		r.record(ctx, fmt.Sprintf("provision[%d]", i), p.Summary, p.Confidence)
	}

	_, err = r.svc.store.InsertForm(ctx, store.PolicyForm{
		DocumentID:  r.doc.ID,
		FilingID:    r.doc.FilingID,
		FormNumber:  formNumber,
		EditionDate: editionDate,
		FormType:    resp.FormType,
		Title:       resp.Title,
		Confidence:  resp.Confidence,
		SourcePage:  1,
	}, provisions)
	if err != nil {
		r.errors = append(r.errors, "persist form: "+err.Error())
		r.settle()
		return
	}

	r.itemsByKind["form"]++
	r.itemsByKind["provision"] += len(provisions)
	r.record(ctx, "form.title", resp.Title, resp.Confidence)
	r.settle()
}

func validProvisionType(t string) bool {
	switch t {
	case "coverage_grant", "exclusion", "condition", "definition":
		return true
	}
	return false
}

// firstPageMetadata pulls the form number and edition date from the first
// page. Missing values are acceptable; the model fills in what it can.
func firstPageMetadata(pages []extract.Page) (formNumber, editionDate string) {
	if len(pages) == 0 {
		return "", ""
	}
	first := pages[0].Text

	if m := formNumberRe.FindStringSubmatch(first); m != nil {
		formNumber = strings.TrimSpace(m[1])
	}
	if m := editionDateRe.FindStringSubmatch(first); m != nil {
		editionDate = m[1]
	}
	return formNumber, editionDate
}
