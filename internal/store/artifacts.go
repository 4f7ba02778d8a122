package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hermes-intel/hermes/internal/db"
)

// InsertRateTable writes a rate table and its child rows, flipping any prior
// current table of the same type for the filing to non-current. One call is
// one transaction.
func (s *Store) InsertRateTable(ctx context.Context, t RateTable, children RateTableChildren) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_rate_tables SET is_current = false
			 WHERE filing_id = $1 AND table_type = $2 AND is_current`,
			t.FilingID, t.TableType); err != nil {
			return storageErr(err, "store: supersede rate tables")
		}

		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_rate_tables
			 (document_id, filing_id, table_type, caption, units, effective_date, confidence, source_page)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
			 RETURNING id`,
			t.DocumentID, t.FilingID, t.TableType, t.Caption, t.Units,
			t.EffectiveDate, t.Confidence, t.SourcePage,
		).Scan(&id)
		if err != nil {
			return storageErr(err, "store: insert rate table")
		}

		return tx.insertRateChildren(ctx, id, children)
	})
	return id, err
}

// RateTableChildren bundles the child rows written under one rate table.
type RateTableChildren struct {
	BaseRates   []BaseRate
	Factors     []RatingFactor
	Territories []TerritoryDefinition
	ClassCodes  []ClassCodeMapping
	Algorithm   []PremiumAlgorithm
}

func (s *Store) insertRateChildren(ctx context.Context, tableID string, c RateTableChildren) error {
	if len(c.BaseRates) > 0 {
		rows := make([][]any, len(c.BaseRates))
		for i, r := range c.BaseRates {
			rows[i] = []any{tableID, r.ClassCode, r.Territory, r.Rate, r.Confidence, r.SourcePage}
		}
		if _, err := db.CopyRows(ctx, s.pool, "hermes_base_rates",
			[]string{"rate_table_id", "class_code", "territory", "rate", "confidence", "source_page"}, rows); err != nil {
			return storageErr(err, "store: insert base rates")
		}
	}

	if len(c.Factors) > 0 {
		rows := make([][]any, len(c.Factors))
		for i, r := range c.Factors {
			rows[i] = []any{tableID, r.FactorName, r.FactorValue, r.AppliesTo, r.Confidence, r.SourcePage}
		}
		if _, err := db.CopyRows(ctx, s.pool, "hermes_rating_factors",
			[]string{"rate_table_id", "factor_name", "factor_value", "applies_to", "confidence", "source_page"}, rows); err != nil {
			return storageErr(err, "store: insert rating factors")
		}
	}

	if len(c.Territories) > 0 {
		rows := make([][]any, len(c.Territories))
		for i, r := range c.Territories {
			rows[i] = []any{tableID, r.TerritoryCode, r.Description, r.Confidence, r.SourcePage}
		}
		if _, err := db.CopyRows(ctx, s.pool, "hermes_territory_definitions",
			[]string{"rate_table_id", "territory_code", "description", "confidence", "source_page"}, rows); err != nil {
			return storageErr(err, "store: insert territory definitions")
		}
	}

	if len(c.ClassCodes) > 0 {
		rows := make([][]any, len(c.ClassCodes))
		for i, r := range c.ClassCodes {
			rows[i] = []any{tableID, r.ClassCode, r.Description, r.EligibilityStatus, r.Confidence, r.SourcePage}
		}
		if _, err := db.CopyRows(ctx, s.pool, "hermes_class_code_mappings",
			[]string{"rate_table_id", "class_code", "description", "eligibility_status", "confidence", "source_page"}, rows); err != nil {
			return storageErr(err, "store: insert class mappings")
		}
	}

	if len(c.Algorithm) > 0 {
		rows := make([][]any, len(c.Algorithm))
		for i, r := range c.Algorithm {
			rows[i] = []any{tableID, r.StepOrder, r.Description, r.Confidence, r.SourcePage}
		}
		if _, err := db.CopyRows(ctx, s.pool, "hermes_premium_algorithms",
			[]string{"rate_table_id", "step_order", "description", "confidence", "source_page"}, rows); err != nil {
			return storageErr(err, "store: insert premium algorithms")
		}
	}

	return nil
}

// InsertRule writes an underwriting rule and its criteria in one transaction.
func (s *Store) InsertRule(ctx context.Context, r UnderwritingRule, criteria []EligibilityCriterion) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_underwriting_rules
			 (document_id, filing_id, rule_type, category, full_text, confidence, source_page)
			 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
			 RETURNING id`,
			r.DocumentID, r.FilingID, r.RuleType, r.Category, r.FullText, r.Confidence, r.SourcePage,
		).Scan(&id)
		if err != nil {
			return storageErr(err, "store: insert rule")
		}

		if len(criteria) == 0 {
			return nil
		}
		rows := make([][]any, len(criteria))
		for i, c := range criteria {
			rows[i] = []any{id, c.CriterionType, c.Value, c.Operator, c.Unit, c.IsHardRule, c.Confidence}
		}
		_, err = db.CopyRows(ctx, tx.pool, "hermes_eligibility_criteria",
			[]string{"rule_id", "criterion_type", "value", "operator", "unit", "is_hard_rule", "confidence"}, rows)
		return storageErr(err, "store: insert criteria")
	})
	return id, err
}

// InsertForm writes a policy form and its provisions in one transaction.
func (s *Store) InsertForm(ctx context.Context, f PolicyForm, provisions []FormProvision) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_policy_forms
			 (document_id, filing_id, form_number, edition_date, form_type, title, confidence, source_page)
			 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
			 RETURNING id`,
			f.DocumentID, f.FilingID, f.FormNumber, f.EditionDate, f.FormType, f.Title,
			f.Confidence, f.SourcePage,
		).Scan(&id)
		if err != nil {
			return storageErr(err, "store: insert form")
		}

		if len(provisions) == 0 {
			return nil
		}
		rows := make([][]any, len(provisions))
		for i, p := range provisions {
			rows[i] = []any{id, p.ProvisionType, p.Summary, p.Impact, p.Confidence, p.SourcePage}
		}
		_, err = db.CopyRows(ctx, tx.pool, "hermes_form_provisions",
			[]string{"form_id", "provision_type", "summary", "impact", "confidence", "source_page"}, rows)
		return storageErr(err, "store: insert provisions")
	})
	return id, err
}

// CurrentEligibleClasses returns class codes marked eligible in current
// class-mapping tables for a (carrier, state, line) triple.
func (s *Store) CurrentEligibleClasses(ctx context.Context, carrierID, state, line string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT m.class_code
		 FROM hermes_class_code_mappings m
		 JOIN hermes_rate_tables t ON t.id = m.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.carrier_id = $1 AND f.state = $2 AND f.line_of_business = $3
		   AND t.is_current AND m.eligibility_status = 'eligible'
		 ORDER BY m.class_code`,
		carrierID, state, line)
	if err != nil {
		return nil, storageErr(err, "store: current eligible classes")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// CurrentIneligibleClasses returns class codes marked ineligible.
func (s *Store) CurrentIneligibleClasses(ctx context.Context, carrierID, state, line string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT m.class_code
		 FROM hermes_class_code_mappings m
		 JOIN hermes_rate_tables t ON t.id = m.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.carrier_id = $1 AND f.state = $2 AND f.line_of_business = $3
		   AND t.is_current AND m.eligibility_status = 'ineligible'
		 ORDER BY m.class_code`,
		carrierID, state, line)
	if err != nil {
		return nil, storageErr(err, "store: current ineligible classes")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// CurrentTerritoryCodes returns territory codes in the latest current rate
// tables for a triple.
func (s *Store) CurrentTerritoryCodes(ctx context.Context, carrierID, state, line string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT td.territory_code
		 FROM hermes_territory_definitions td
		 JOIN hermes_rate_tables t ON t.id = td.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.carrier_id = $1 AND f.state = $2 AND f.line_of_business = $3
		   AND t.is_current
		 ORDER BY td.territory_code`,
		carrierID, state, line)
	if err != nil {
		return nil, storageErr(err, "store: current territory codes")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// AvgBaseRate returns the carrier's average current base rate for a triple,
// and the market average across all carriers in the same (state, line).
func (s *Store) AvgBaseRate(ctx context.Context, carrierID, state, line string) (own float64, market float64, err error) {
	e := s.pool.QueryRow(ctx,
		`SELECT
			COALESCE(avg(r.rate) FILTER (WHERE f.carrier_id = $1), 0),
			COALESCE(avg(r.rate), 0)
		 FROM hermes_base_rates r
		 JOIN hermes_rate_tables t ON t.id = r.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.state = $2 AND f.line_of_business = $3 AND t.is_current`,
		carrierID, state, line,
	).Scan(&own, &market)
	return own, market, storageErr(e, "store: avg base rate")
}

// ClassCodeRates returns per-carrier average rates for a class code in a
// (state, line), used for ranking recompute.
func (s *Store) ClassCodeRates(ctx context.Context, state, line, classCode string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.carrier_id, avg(r.rate)
		 FROM hermes_base_rates r
		 JOIN hermes_rate_tables t ON t.id = r.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.state = $1 AND f.line_of_business = $2 AND r.class_code = $3
		   AND t.is_current AND f.carrier_id IS NOT NULL
		 GROUP BY f.carrier_id`,
		state, line, classCode)
	if err != nil {
		return nil, storageErr(err, "store: class code rates")
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var carrierID string
		var rate float64
		if err := rows.Scan(&carrierID, &rate); err != nil {
			return nil, storageErr(err, "store: scan class code rate")
		}
		out[carrierID] = rate
	}
	return out, storageErr(rows.Err(), "store: iterate class code rates")
}

// DistinctClassCodes lists class codes present in current tables for a
// (state, line), capped at limit.
func (s *Store) DistinctClassCodes(ctx context.Context, state, line string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT r.class_code
		 FROM hermes_base_rates r
		 JOIN hermes_rate_tables t ON t.id = r.rate_table_id
		 JOIN hermes_filings f ON f.id = t.filing_id
		 WHERE f.state = $1 AND f.line_of_business = $2 AND t.is_current
		 ORDER BY r.class_code
		 LIMIT $3`,
		state, line, limit)
	if err != nil {
		return nil, storageErr(err, "store: distinct class codes")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UpsertRankings bulk-writes carrier ranking rows, replacing rank and rate on
// conflict.
func (s *Store) UpsertRankings(ctx context.Context, rankings []CarrierRanking) error {
	if len(rankings) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([][]any, len(rankings))
	for i, r := range rankings {
		rows[i] = []any{r.State, r.LineOfBusiness, r.ClassCode, r.CarrierID, r.Rank, r.AvgRate, now}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "hermes_carrier_rankings",
		Columns:      []string{"state", "line_of_business", "class_code", "carrier_id", "rank", "avg_rate", "computed_at"},
		ConflictKeys: []string{"state", "line_of_business", "class_code", "carrier_id"},
	}, rows)
	return storageErr(err, "store: upsert rankings")
}

// InsertCoverageOptions, InsertCreditSurcharges and InsertExclusions append
// flat extracts for a document.
func (s *Store) InsertCoverageOptions(ctx context.Context, opts []CoverageOption) error {
	if len(opts) == 0 {
		return nil
	}
	rows := make([][]any, len(opts))
	for i, o := range opts {
		rows[i] = []any{o.DocumentID, o.FilingID, o.Name, o.Description, o.Confidence, o.SourcePage}
	}
	_, err := db.CopyRows(ctx, s.pool, "hermes_coverage_options",
		[]string{"document_id", "filing_id", "name", "description", "confidence", "source_page"}, rows)
	return storageErr(err, "store: insert coverage options")
}

func (s *Store) InsertCreditSurcharges(ctx context.Context, items []CreditSurcharge) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, len(items))
	for i, c := range items {
		rows[i] = []any{c.DocumentID, c.FilingID, c.Name, c.Kind, c.Amount, c.Unit, c.Confidence, c.SourcePage}
	}
	_, err := db.CopyRows(ctx, s.pool, "hermes_credit_surcharges",
		[]string{"document_id", "filing_id", "name", "kind", "amount", "unit", "confidence", "source_page"}, rows)
	return storageErr(err, "store: insert credit surcharges")
}

func (s *Store) InsertExclusions(ctx context.Context, items []Exclusion) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, len(items))
	for i, e := range items {
		rows[i] = []any{e.DocumentID, e.FilingID, e.Description, e.Confidence, e.SourcePage}
	}
	_, err := db.CopyRows(ctx, s.pool, "hermes_exclusions",
		[]string{"document_id", "filing_id", "description", "confidence", "source_page"}, rows)
	return storageErr(err, "store: insert exclusions")
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(err, "store: scan string")
		}
		out = append(out, v)
	}
	return out, storageErr(rows.Err(), "store: iterate strings")
}
