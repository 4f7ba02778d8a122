package store

import (
	"context"

	"github.com/hermes-intel/hermes/internal/db"
)

// InstallPMICard installs a new current PMI rate card with its grid and
// adjustments, superseding the previous current card for the same
// (carrier, premium type, state). One transaction.
func (s *Store) InstallPMICard(ctx context.Context, card PMIRateCard) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_pmi_rate_cards (carrier_id, premium_type, state, version, effective_date, is_current)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, false)
			 RETURNING id`,
			card.CarrierID, card.PremiumType, card.State, card.Version, card.EffectiveDate,
		).Scan(&id)
		if err != nil {
			return storageErr(err, "store: insert pmi card")
		}

		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_pmi_rate_cards SET is_current = false, superseded_by = $4
			 WHERE carrier_id = $1 AND premium_type = $2 AND state = $3 AND is_current`,
			card.CarrierID, card.PremiumType, card.State, id); err != nil {
			return storageErr(err, "store: supersede pmi card")
		}
		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_pmi_rate_cards SET is_current = true WHERE id = $1`, id); err != nil {
			return storageErr(err, "store: activate pmi card")
		}

		if len(card.Rates) > 0 {
			rows := make([][]any, len(card.Rates))
			for i, r := range card.Rates {
				rows[i] = []any{id, r.LTVMin, r.LTVMax, r.FICOMin, r.FICOMax, r.CoveragePct, r.Rate}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_pmi_rates",
				[]string{"card_id", "ltv_min", "ltv_max", "fico_min", "fico_max", "coverage_pct", "rate"}, rows); err != nil {
				return storageErr(err, "store: insert pmi rates")
			}
		}

		if len(card.Adjustments) > 0 {
			rows := make([][]any, len(card.Adjustments))
			for i, a := range card.Adjustments {
				cond := a.Condition
				if len(cond) == 0 {
					cond = []byte(`{}`)
				}
				rows[i] = []any{id, a.Position, a.Name, cond, a.Method, a.Value}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_pmi_adjustments",
				[]string{"card_id", "position", "name", "condition", "method", "value"}, rows); err != nil {
				return storageErr(err, "store: insert pmi adjustments")
			}
		}
		return nil
	})
	return id, err
}

// CurrentPMICards returns the current cards for a premium type in a state.
// A state-specific card shadows the carrier's 'ALL' card.
func (s *Store) CurrentPMICards(ctx context.Context, premiumType, state string) ([]PMIRateCard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (carrier_id) id, carrier_id, premium_type, state,
			COALESCE(version, ''), effective_date, is_current, superseded_by
		 FROM hermes_pmi_rate_cards
		 WHERE premium_type = $1 AND state IN ($2, 'ALL') AND is_current
		 ORDER BY carrier_id, (state = 'ALL')`,
		premiumType, state)
	if err != nil {
		return nil, storageErr(err, "store: current pmi cards")
	}
	defer rows.Close()

	var cards []PMIRateCard
	for rows.Next() {
		var c PMIRateCard
		if err := rows.Scan(&c.ID, &c.CarrierID, &c.PremiumType, &c.State,
			&c.Version, &c.EffectiveDate, &c.IsCurrent, &c.SupersededBy); err != nil {
			return nil, storageErr(err, "store: scan pmi card")
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "store: iterate pmi cards")
	}

	for i := range cards {
		if err := s.loadPMICardBody(ctx, &cards[i]); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func (s *Store) loadPMICardBody(ctx context.Context, card *PMIRateCard) error {
	rateRows, err := s.pool.Query(ctx,
		`SELECT ltv_min, ltv_max, fico_min, fico_max, coverage_pct, rate
		 FROM hermes_pmi_rates WHERE card_id = $1
		 ORDER BY ltv_min, fico_min, coverage_pct`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: pmi rates")
	}
	defer rateRows.Close()
	for rateRows.Next() {
		var r PMIRate
		if err := rateRows.Scan(&r.LTVMin, &r.LTVMax, &r.FICOMin, &r.FICOMax, &r.CoveragePct, &r.Rate); err != nil {
			return storageErr(err, "store: scan pmi rate")
		}
		card.Rates = append(card.Rates, r)
	}
	if err := rateRows.Err(); err != nil {
		return storageErr(err, "store: iterate pmi rates")
	}

	adjRows, err := s.pool.Query(ctx,
		`SELECT position, name, condition, method, value
		 FROM hermes_pmi_adjustments WHERE card_id = $1
		 ORDER BY position`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: pmi adjustments")
	}
	defer adjRows.Close()
	for adjRows.Next() {
		var a PMIAdjustment
		if err := adjRows.Scan(&a.Position, &a.Name, &a.Condition, &a.Method, &a.Value); err != nil {
			return storageErr(err, "store: scan pmi adjustment")
		}
		card.Adjustments = append(card.Adjustments, a)
	}
	return storageErr(adjRows.Err(), "store: iterate pmi adjustments")
}

// InstallTitleCard installs a new current title rate card with its bands,
// discounts, reissue tiers and endorsements, superseding the previous current
// card for the same (carrier, policy type, state). One transaction.
func (s *Store) InstallTitleCard(ctx context.Context, card TitleRateCard) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_title_rate_cards
			 (carrier_id, policy_type, state, version, effective_date, is_promulgated, is_current)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, false)
			 RETURNING id`,
			card.CarrierID, card.PolicyType, card.State, card.Version,
			card.EffectiveDate, card.IsPromulgated,
		).Scan(&id)
		if err != nil {
			return storageErr(err, "store: insert title card")
		}

		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_title_rate_cards SET is_current = false, superseded_by = $4
			 WHERE carrier_id = $1 AND policy_type = $2 AND state = $3 AND is_current`,
			card.CarrierID, card.PolicyType, card.State, id); err != nil {
			return storageErr(err, "store: supersede title card")
		}
		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_title_rate_cards SET is_current = true WHERE id = $1`, id); err != nil {
			return storageErr(err, "store: activate title card")
		}

		if len(card.Bands) > 0 {
			rows := make([][]any, len(card.Bands))
			for i, b := range card.Bands {
				rows[i] = []any{id, b.CoverageMin, b.CoverageMax, b.RatePerThousand, b.FlatFee, b.MinimumPremium}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_title_rates",
				[]string{"card_id", "coverage_min", "coverage_max", "rate_per_thousand", "flat_fee", "minimum_premium"}, rows); err != nil {
				return storageErr(err, "store: insert title rates")
			}
		}

		if len(card.Simultaneous) > 0 {
			rows := make([][]any, len(card.Simultaneous))
			for i, b := range card.Simultaneous {
				rows[i] = []any{id, b.LoanMin, b.LoanMax, b.DiscountRatePerThousand, b.DiscountPct, b.FlatFee}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_title_simultaneous",
				[]string{"card_id", "loan_min", "loan_max", "discount_rate_per_thousand", "discount_pct", "flat_fee"}, rows); err != nil {
				return storageErr(err, "store: insert title simultaneous bands")
			}
		}

		if len(card.Reissue) > 0 {
			rows := make([][]any, len(card.Reissue))
			for i, t := range card.Reissue {
				rows[i] = []any{id, t.YearsMin, t.YearsMax, t.CreditPct}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_title_reissue",
				[]string{"card_id", "years_min", "years_max", "credit_pct"}, rows); err != nil {
				return storageErr(err, "store: insert title reissue tiers")
			}
		}

		if len(card.Endorsements) > 0 {
			rows := make([][]any, len(card.Endorsements))
			for i, e := range card.Endorsements {
				rows[i] = []any{id, e.Code, e.Description, e.FlatFee, e.RatePerThousand, e.PctOfBase}
			}
			if _, err := db.CopyRows(ctx, tx.pool, "hermes_title_endorsements",
				[]string{"card_id", "code", "description", "flat_fee", "rate_per_thousand", "pct_of_base"}, rows); err != nil {
				return storageErr(err, "store: insert title endorsements")
			}
		}
		return nil
	})
	return id, err
}

// CurrentTitleCards returns current title cards for a (policy type, state).
// Title rates are state-filed; there is no countrywide fallback.
func (s *Store) CurrentTitleCards(ctx context.Context, policyType, state string) ([]TitleRateCard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, carrier_id, policy_type, state, COALESCE(version, ''),
			effective_date, is_promulgated, is_current, superseded_by
		 FROM hermes_title_rate_cards
		 WHERE policy_type = $1 AND state = $2 AND is_current
		 ORDER BY carrier_id`,
		policyType, state)
	if err != nil {
		return nil, storageErr(err, "store: current title cards")
	}
	defer rows.Close()

	var cards []TitleRateCard
	for rows.Next() {
		var c TitleRateCard
		if err := rows.Scan(&c.ID, &c.CarrierID, &c.PolicyType, &c.State, &c.Version,
			&c.EffectiveDate, &c.IsPromulgated, &c.IsCurrent, &c.SupersededBy); err != nil {
			return nil, storageErr(err, "store: scan title card")
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "store: iterate title cards")
	}

	for i := range cards {
		if err := s.loadTitleCardBody(ctx, &cards[i]); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func (s *Store) loadTitleCardBody(ctx context.Context, card *TitleRateCard) error {
	bandRows, err := s.pool.Query(ctx,
		`SELECT coverage_min, coverage_max, rate_per_thousand, flat_fee, minimum_premium
		 FROM hermes_title_rates WHERE card_id = $1 ORDER BY coverage_min`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: title rates")
	}
	defer bandRows.Close()
	for bandRows.Next() {
		var b TitleRate
		if err := bandRows.Scan(&b.CoverageMin, &b.CoverageMax, &b.RatePerThousand, &b.FlatFee, &b.MinimumPremium); err != nil {
			return storageErr(err, "store: scan title rate")
		}
		card.Bands = append(card.Bands, b)
	}
	if err := bandRows.Err(); err != nil {
		return storageErr(err, "store: iterate title rates")
	}

	simRows, err := s.pool.Query(ctx,
		`SELECT loan_min, loan_max, discount_rate_per_thousand, discount_pct, flat_fee
		 FROM hermes_title_simultaneous WHERE card_id = $1 ORDER BY loan_min`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: title simultaneous bands")
	}
	defer simRows.Close()
	for simRows.Next() {
		var b TitleSimultaneous
		if err := simRows.Scan(&b.LoanMin, &b.LoanMax, &b.DiscountRatePerThousand, &b.DiscountPct, &b.FlatFee); err != nil {
			return storageErr(err, "store: scan title simultaneous band")
		}
		card.Simultaneous = append(card.Simultaneous, b)
	}
	if err := simRows.Err(); err != nil {
		return storageErr(err, "store: iterate title simultaneous bands")
	}

	reissueRows, err := s.pool.Query(ctx,
		`SELECT years_min, years_max, credit_pct
		 FROM hermes_title_reissue WHERE card_id = $1 ORDER BY years_min`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: title reissue tiers")
	}
	defer reissueRows.Close()
	for reissueRows.Next() {
		var t TitleReissue
		if err := reissueRows.Scan(&t.YearsMin, &t.YearsMax, &t.CreditPct); err != nil {
			return storageErr(err, "store: scan title reissue tier")
		}
		card.Reissue = append(card.Reissue, t)
	}
	if err := reissueRows.Err(); err != nil {
		return storageErr(err, "store: iterate title reissue tiers")
	}

	endRows, err := s.pool.Query(ctx,
		`SELECT code, COALESCE(description, ''), flat_fee, rate_per_thousand, pct_of_base
		 FROM hermes_title_endorsements WHERE card_id = $1 ORDER BY code`,
		card.ID)
	if err != nil {
		return storageErr(err, "store: title endorsements")
	}
	defer endRows.Close()
	for endRows.Next() {
		var e TitleEndorsement
		if err := endRows.Scan(&e.Code, &e.Description, &e.FlatFee, &e.RatePerThousand, &e.PctOfBase); err != nil {
			return storageErr(err, "store: scan title endorsement")
		}
		card.Endorsements = append(card.Endorsements, e)
	}
	return storageErr(endRows.Err(), "store: iterate title endorsements")
}
