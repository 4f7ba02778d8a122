package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/pkg/anthropic"
)

const rateSystemText = "You are an insurance filing analyst extracting rate tables from regulatory documents. Return only valid JSON matching the requested schema. Use null for values not present in the table."

const rateTablePrompt = `The following text is one page of an insurance rate filing. It appears to contain a tabular rate structure.

Preceding caption (may be empty):
%s

Page text:
%s

Identify the table and return a JSON object:
{
  "classification": "base_rate" | "rating_factor" | "territory" | "class_mapping" | "premium_algorithm",
  "caption": "<table caption or empty string>",
  "units": "<rate units, e.g. 'per $100 of payroll', or empty>",
  "effective_date": "YYYY-MM-DD or null",
  "confidence": <0.0-1.0>,
  "rows": [
    {"class_code": "...", "territory": "...", "rate": <number>,
     "factor_name": "...", "factor_value": <number>, "applies_to": "...",
     "territory_code": "...", "description": "...", "eligibility_status": "eligible" | "ineligible" | "referral",
     "step_order": <number>}
  ]
}
Use premium_algorithm for ordered premium-computation steps, with step_order
and description per row. Populate only the row fields that apply to the
classification; leave the rest null.`

// rateTableResp mirrors the schema in rateTablePrompt.
type rateTableResp struct {
	Classification string        `json:"classification"`
	Caption        string        `json:"caption"`
	Units          string        `json:"units"`
	EffectiveDate  *string       `json:"effective_date"`
	Confidence     float64       `json:"confidence"`
	Rows           []rateRowResp `json:"rows"`
}

type rateRowResp struct {
	ClassCode         string   `json:"class_code"`
	Territory         string   `json:"territory"`
	Rate              *float64 `json:"rate"`
	FactorName        string   `json:"factor_name"`
	FactorValue       *float64 `json:"factor_value"`
	AppliesTo         string   `json:"applies_to"`
	TerritoryCode     string   `json:"territory_code"`
	Description       string   `json:"description"`
	EligibilityStatus string   `json:"eligibility_status"`
	StepOrder         *int     `json:"step_order"`
	Confidence        *float64 `json:"confidence"`
}

// parseRate walks pages, sends each tabular candidate to the model, and
// persists validated tables with their child rows. A bad response skips that
// page; the parse continues.
func (r *run) parseRate(ctx context.Context, pages []extract.Page) {
	system := anthropic.BuildCachedSystemBlocks(rateSystemText)

	for i, page := range pages {
		if !looksTabular(page.Text) {
			continue
		}

		caption := trailingCaption(pages, i)
		text, err := r.callModel(ctx, system, fmt.Sprintf(rateTablePrompt, caption, page.Text))
		if err != nil {
			r.errors = append(r.errors, fmt.Sprintf("page %d: %s", page.Number, err))
			continue
		}

		var resp rateTableResp
		if err := decodeObject(text, &resp); err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("page %d: %s", page.Number, err))
			continue
		}
		if !validTableType(resp.Classification) {
			r.warnings = append(r.warnings, fmt.Sprintf("page %d: unknown table classification %q", page.Number, resp.Classification))
			continue
		}
		if len(resp.Rows) == 0 {
			continue
		}

		table := store.RateTable{
			DocumentID: r.doc.ID,
			FilingID:   r.doc.FilingID,
			TableType:  resp.Classification,
			Caption:    resp.Caption,
			Units:      resp.Units,
			Confidence: resp.Confidence,
			SourcePage: page.Number,
		}
		if resp.EffectiveDate != nil {
			if d, err := time.Parse("2006-01-02", *resp.EffectiveDate); err == nil {
				table.EffectiveDate = &d
			}
		}

		children := r.buildRateChildren(ctx, resp, page.Number)
		if _, err := r.svc.store.InsertRateTable(ctx, table, children); err != nil {
			r.errors = append(r.errors, fmt.Sprintf("page %d: persist rate table: %s", page.Number, err))
			continue
		}

		r.itemsByKind["rate_table"]++
		r.record(ctx, fmt.Sprintf("rate_table[page=%d]", page.Number), resp.Classification, resp.Confidence)
		zap.L().Debug("rate table extracted",
			zap.String("component", "parser"),
			zap.String("document_id", r.doc.ID),
			zap.Int("page", page.Number),
			zap.String("type", resp.Classification),
			zap.Int("rows", len(resp.Rows)))
	}
	r.settle()
}

func (r *run) buildRateChildren(ctx context.Context, resp rateTableResp, pageNum int) store.RateTableChildren {
	var children store.RateTableChildren

	for i, row := range resp.Rows {
		conf := resp.Confidence
		if row.Confidence != nil {
			conf = *row.Confidence
		}

		switch resp.Classification {
		case "base_rate":
			if row.ClassCode == "" || row.Rate == nil {
				continue
			}
			children.BaseRates = append(children.BaseRates, store.BaseRate{
				ClassCode:  row.ClassCode,
				Territory:  row.Territory,
				Rate:       *row.Rate,
				Confidence: conf,
				SourcePage: pageNum,
			})
			r.itemsByKind["base_rate"]++
			r.record(ctx, fmt.Sprintf("base_rate[page=%d,row=%d]", pageNum, i), row.ClassCode, conf)

		case "rating_factor":
			if row.FactorName == "" || row.FactorValue == nil {
				continue
			}
			children.Factors = append(children.Factors, store.RatingFactor{
				FactorName:  row.FactorName,
				FactorValue: *row.FactorValue,
				AppliesTo:   row.AppliesTo,
				Confidence:  conf,
				SourcePage:  pageNum,
			})
			r.itemsByKind["rating_factor"]++
			r.record(ctx, fmt.Sprintf("rating_factor[page=%d,row=%d]", pageNum, i), row.FactorName, conf)

		case "territory":
			if row.TerritoryCode == "" {
				continue
			}
			children.Territories = append(children.Territories, store.TerritoryDefinition{
				TerritoryCode: row.TerritoryCode,
				Description:   row.Description,
				Confidence:    conf,
				SourcePage:    pageNum,
			})
			r.itemsByKind["territory"]++
			r.record(ctx, fmt.Sprintf("territory[page=%d,row=%d]", pageNum, i), row.TerritoryCode, conf)

		case "class_mapping":
			if row.ClassCode == "" {
				continue
			}
			status := row.EligibilityStatus
			if status == "" {
				status = "eligible"
			}
			children.ClassCodes = append(children.ClassCodes, store.ClassCodeMapping{
				ClassCode:         row.ClassCode,
				Description:       row.Description,
				EligibilityStatus: status,
				Confidence:        conf,
				SourcePage:        pageNum,
			})
			r.itemsByKind["class_mapping"]++
			r.record(ctx, fmt.Sprintf("class_mapping[page=%d,row=%d]", pageNum, i), row.ClassCode, conf)

		case "premium_algorithm":
			if row.Description == "" {
				continue
			}
			step := i + 1
			if row.StepOrder != nil {
				step = *row.StepOrder
			}
			children.Algorithm = append(children.Algorithm, store.PremiumAlgorithm{
				StepOrder:   step,
				Description: row.Description,
				Confidence:  conf,
				SourcePage:  pageNum,
			})
			r.itemsByKind["premium_algorithm"]++
			r.record(ctx, fmt.Sprintf("premium_algorithm[page=%d,step=%d]", pageNum, step), row.Description, conf)
		}
	}
	return children
}

func validTableType(t string) bool {
	switch t {
	case "base_rate", "rating_factor", "territory", "class_mapping", "premium_algorithm":
		return true
	}
	return false
}

var numericCell = regexp.MustCompile(`(?:\$\s*)?\d[\d,]*(?:\.\d+)?%?`)

// looksTabular reports whether a page plausibly contains a rate table: at
// least three lines that each carry two or more numeric cells separated by
// multi-space column gaps.
func looksTabular(text string) bool {
	tabularLines := 0
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "  ") {
			continue
		}
		if len(numericCell.FindAllString(line, 3)) >= 2 {
			tabularLines++
			if tabularLines >= 3 {
				return true
			}
		}
	}
	return false
}

// trailingCaption returns the last non-empty lines of the preceding page,
// which usually carry the table caption when a table starts at a page break.
func trailingCaption(pages []extract.Page, idx int) string {
	if idx == 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(pages[idx-1].Text, "\n \t"), "\n")
	start := len(lines) - 3
	if start < 0 {
		start = 0
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
