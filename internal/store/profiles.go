package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// CurrentProfile loads the current appetite profile for a triple, or nil.
func (s *Store) CurrentProfile(ctx context.Context, carrierID, state, line string) (*AppetiteProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, carrier_id, state, line_of_business, appetite_score,
			eligible_classes, ineligible_classes, preferred_classes, territory_preferences,
			min_premium, max_premium, rate_competitiveness, last_rate_change_pct,
			source_filing_count, is_current, computed_at
		 FROM hermes_appetite_profiles
		 WHERE carrier_id = $1 AND state = $2 AND line_of_business = $3 AND is_current`,
		carrierID, state, line)
	return scanProfile(row)
}

// SaveProfile installs a new current profile for its triple, flipping the
// previous current row in the same transaction.
func (s *Store) SaveProfile(ctx context.Context, p AppetiteProfile) (string, error) {
	var id string
	err := s.Session(ctx, func(ctx context.Context, tx *Store) error {
		if _, err := tx.pool.Exec(ctx,
			`UPDATE hermes_appetite_profiles SET is_current = false, updated_at = now()
			 WHERE carrier_id = $1 AND state = $2 AND line_of_business = $3 AND is_current`,
			p.CarrierID, p.State, p.LineOfBusiness); err != nil {
			return storageErr(err, "store: supersede profile")
		}

		err := tx.pool.QueryRow(ctx,
			`INSERT INTO hermes_appetite_profiles
			 (carrier_id, state, line_of_business, appetite_score,
			  eligible_classes, ineligible_classes, preferred_classes, territory_preferences,
			  min_premium, max_premium, rate_competitiveness, last_rate_change_pct,
			  source_filing_count, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
			 RETURNING id`,
			p.CarrierID, p.State, p.LineOfBusiness, p.AppetiteScore,
			jsonValue(emptySlice(p.EligibleClasses)), jsonValue(emptySlice(p.IneligibleClasses)),
			jsonValue(emptySlice(p.PreferredClasses)), jsonValue(p.TerritoryPreferences),
			p.MinPremium, p.MaxPremium, p.RateCompetitiveness, p.LastRateChangePct,
			p.SourceFilingCount,
		).Scan(&id)
		return storageErr(err, "store: insert profile")
	})
	return id, err
}

// StaleProfiles returns current profiles not recomputed since the cutoff.
func (s *Store) StaleProfiles(ctx context.Context, cutoff time.Time) ([]AppetiteProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, carrier_id, state, line_of_business, appetite_score,
			eligible_classes, ineligible_classes, preferred_classes, territory_preferences,
			min_premium, max_premium, rate_competitiveness, last_rate_change_pct,
			source_filing_count, is_current, computed_at
		 FROM hermes_appetite_profiles
		 WHERE is_current AND computed_at < $1
		 ORDER BY computed_at`,
		cutoff)
	if err != nil {
		return nil, storageErr(err, "store: stale profiles")
	}
	defer rows.Close()

	var out []AppetiteProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, storageErr(rows.Err(), "store: iterate stale profiles")
}

// RetireProfile clears a profile's current flag without installing a
// replacement. Used when the underlying filings have gone stale.
func (s *Store) RetireProfile(ctx context.Context, profileID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_appetite_profiles SET is_current = false, updated_at = now()
		 WHERE id = $1`,
		profileID)
	return storageErr(err, "store: retire profile")
}

func scanProfile(row pgx.Row) (*AppetiteProfile, error) {
	var p AppetiteProfile
	var eligible, ineligible, preferred, territories []byte
	err := row.Scan(&p.ID, &p.CarrierID, &p.State, &p.LineOfBusiness, &p.AppetiteScore,
		&eligible, &ineligible, &preferred, &territories,
		&p.MinPremium, &p.MaxPremium, &p.RateCompetitiveness, &p.LastRateChangePct,
		&p.SourceFilingCount, &p.IsCurrent, &p.ComputedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: scan profile")
	}
	_ = json.Unmarshal(eligible, &p.EligibleClasses)
	_ = json.Unmarshal(ineligible, &p.IneligibleClasses)
	_ = json.Unmarshal(preferred, &p.PreferredClasses)
	_ = json.Unmarshal(territories, &p.TerritoryPreferences)
	return &p, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
