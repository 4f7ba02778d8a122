package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/hermes-intel/hermes/internal/extract"
	"github.com/hermes-intel/hermes/internal/store"
	"github.com/hermes-intel/hermes/pkg/anthropic"
)

const ruleSystemText = "You are an insurance underwriting analyst extracting rules and eligibility criteria from filed rating manuals. Return only valid JSON matching the requested schema."

const rulePrompt = `The following text is from an insurance underwriting rules filing.

Document text:
%s

Extract every distinct underwriting rule, plus any optional coverages, premium
credits or surcharges, and coverage exclusions the text states. Return a JSON
object:
{
  "rules": [
    {
      "rule_type": "<eligibility | classification | premium_modification | cancellation | other>",
      "category": "<subject area, e.g. 'prior losses', 'years in business'>",
      "full_text": "<the rule verbatim>",
      "confidence": <0.0-1.0>,
      "conditions": [
        {"criterion_type": "<what is being tested>", "value": "<threshold or set>",
         "operator": "eq" | "gt" | "ge" | "lt" | "le" | "in",
         "unit": "<unit or empty>", "is_hard_rule": <true if the rule mandates declination>,
         "confidence": <0.0-1.0>}
      ]
    }
  ],
  "coverage_options": [
    {"name": "...", "description": "...", "confidence": <0.0-1.0>}
  ],
  "credits_surcharges": [
    {"name": "...", "kind": "credit" | "surcharge", "amount": <number>,
     "unit": "<percent | dollars | factor>", "confidence": <0.0-1.0>}
  ],
  "exclusions": [
    {"description": "...", "confidence": <0.0-1.0>}
  ]
}
Leave arrays empty when the text has nothing of that kind.`

// rulePageBudget caps how much document text one model call carries.
const rulePageBudget = 6

// ruleExtractResp mirrors the object schema in rulePrompt.
type ruleExtractResp struct {
	Rules             []ruleResp            `json:"rules"`
	CoverageOptions   []coverageOptionResp  `json:"coverage_options"`
	CreditsSurcharges []creditSurchargeResp `json:"credits_surcharges"`
	Exclusions        []exclusionResp       `json:"exclusions"`
}

type ruleResp struct {
	RuleType   string          `json:"rule_type"`
	Category   string          `json:"category"`
	FullText   string          `json:"full_text"`
	Confidence float64         `json:"confidence"`
	Conditions []criterionResp `json:"conditions"`
}

type coverageOptionResp struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type creditSurchargeResp struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Amount     float64 `json:"amount"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

type exclusionResp struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type criterionResp struct {
	CriterionType string  `json:"criterion_type"`
	Value         string  `json:"value"`
	Operator      string  `json:"operator"`
	Unit          string  `json:"unit"`
	IsHardRule    bool    `json:"is_hard_rule"`
	Confidence    float64 `json:"confidence"`
}

var validOperators = map[string]bool{
	"eq": true, "gt": true, "ge": true, "lt": true, "le": true, "in": true,
}

// parseRule extracts underwriting rules and their typed criteria. Pages are
// grouped into chunks so one model call sees enough context to keep rules
// whole across page breaks.
func (r *run) parseRule(ctx context.Context, pages []extract.Page) {
	system := anthropic.BuildCachedSystemBlocks(ruleSystemText)

	for chunkStart := 0; chunkStart < len(pages); chunkStart += rulePageBudget {
		end := chunkStart + rulePageBudget
		if end > len(pages) {
			end = len(pages)
		}

		var body strings.Builder
		for _, p := range pages[chunkStart:end] {
			fmt.Fprintf(&body, "--- page %d ---\n%s\n", p.Number, p.Text)
		}
		if strings.TrimSpace(body.String()) == "" {
			continue
		}

		text, err := r.callModel(ctx, system, fmt.Sprintf(rulePrompt, body.String()))
		if err != nil {
			r.errors = append(r.errors, fmt.Sprintf("pages %d-%d: %s", pages[chunkStart].Number, pages[end-1].Number, err))
			continue
		}

		var resp ruleExtractResp
		if err := decodeObject(text, &resp); err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("pages %d-%d: %s", pages[chunkStart].Number, pages[end-1].Number, err))
			continue
		}

		for i, rule := range resp.Rules {
			if strings.TrimSpace(rule.FullText) == "" {
				continue
			}

			var criteria []store.EligibilityCriterion
			for _, c := range rule.Conditions {
				op := c.Operator
				if !validOperators[op] {
					r.warnings = append(r.warnings, fmt.Sprintf("rule %d: dropping criterion with operator %q", i, c.Operator))
					continue
				}
				criteria = append(criteria, store.EligibilityCriterion{
					CriterionType: c.CriterionType,
					Value:         c.Value,
					Operator:      op,
					Unit:          c.Unit,
					IsHardRule:    c.IsHardRule,
					Confidence:    c.Confidence,
				})
				r.record(ctx, fmt.Sprintf("criterion[%s]", c.CriterionType), c.Value, c.Confidence)
			}

			_, err := r.svc.store.InsertRule(ctx, store.UnderwritingRule{
				DocumentID: r.doc.ID,
				FilingID:   r.doc.FilingID,
				RuleType:   rule.RuleType,
				Category:   rule.Category,
				FullText:   rule.FullText,
				Confidence: rule.Confidence,
				SourcePage: pages[chunkStart].Number,
			}, criteria)
			if err != nil {
				r.errors = append(r.errors, fmt.Sprintf("persist rule %d: %s", i, err))
				continue
			}

			r.itemsByKind["rule"]++
			r.itemsByKind["criterion"] += len(criteria)
			r.record(ctx, fmt.Sprintf("rule[%d]", i), rule.Category, rule.Confidence)
		}

		r.persistRuleExtras(ctx, resp, pages[chunkStart].Number)
	}
	r.settle()
}

// persistRuleExtras writes the flat coverage-option, credit/surcharge, and
// exclusion extracts that ride along with a rule chunk.
func (r *run) persistRuleExtras(ctx context.Context, resp ruleExtractResp, pageNum int) {
	var options []store.CoverageOption
	for i, o := range resp.CoverageOptions {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		options = append(options, store.CoverageOption{
			DocumentID:  r.doc.ID,
			FilingID:    r.doc.FilingID,
			Name:        o.Name,
			Description: o.Description,
			Confidence:  o.Confidence,
			SourcePage:  pageNum,
		})
		r.record(ctx, fmt.Sprintf("coverage_option[%d]", i), o.Name, o.Confidence)
	}
	if len(options) > 0 {
		if err := r.svc.store.InsertCoverageOptions(ctx, options); err != nil {
			r.errors = append(r.errors, "persist coverage options: "+err.Error())
		} else {
			r.itemsByKind["coverage_option"] += len(options)
		}
	}

	var credits []store.CreditSurcharge
	for i, c := range resp.CreditsSurcharges {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.Kind != "credit" && c.Kind != "surcharge" {
			r.warnings = append(r.warnings, fmt.Sprintf("credit/surcharge %d: dropping unknown kind %q", i, c.Kind))
			continue
		}
		credits = append(credits, store.CreditSurcharge{
			DocumentID: r.doc.ID,
			FilingID:   r.doc.FilingID,
			Name:       c.Name,
			Kind:       c.Kind,
			Amount:     c.Amount,
			Unit:       c.Unit,
			Confidence: c.Confidence,
			SourcePage: pageNum,
		})
		r.record(ctx, fmt.Sprintf("credit_surcharge[%d]", i), c.Name, c.Confidence)
	}
	if len(credits) > 0 {
		if err := r.svc.store.InsertCreditSurcharges(ctx, credits); err != nil {
			r.errors = append(r.errors, "persist credits/surcharges: "+err.Error())
		} else {
			r.itemsByKind["credit_surcharge"] += len(credits)
		}
	}

	var exclusions []store.Exclusion
	for i, e := range resp.Exclusions {
		if strings.TrimSpace(e.Description) == "" {
			continue
		}
		exclusions = append(exclusions, store.Exclusion{
			DocumentID:  r.doc.ID,
			FilingID:    r.doc.FilingID,
			Description: e.Description,
			Confidence:  e.Confidence,
			SourcePage:  pageNum,
		})
		r.record(ctx, fmt.Sprintf("exclusion[%d]", i), e.Description, e.Confidence)
	}
	if len(exclusions) > 0 {
		if err := r.svc.store.InsertExclusions(ctx, exclusions); err != nil {
			r.errors = append(r.errors, "persist exclusions: "+err.Error())
		} else {
			r.itemsByKind["exclusion"] += len(exclusions)
		}
	}
}
