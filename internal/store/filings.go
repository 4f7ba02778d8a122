package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertFiling inserts or updates a filing by (tracking, state) and returns
// its id. Non-null inbound columns merge over the existing row; raw_metadata
// is JSON-unioned so keys written by earlier passes survive.
func (s *Store) UpsertFiling(ctx context.Context, f Filing) (string, error) {
	query := `INSERT INTO hermes_filings
		(carrier_id, serff_tracking, state, line_of_business, filing_type, status,
		 filed_date, effective_date, disposition_date, overall_rate_change_pct, raw_metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, COALESCE($11, '{}'::jsonb))
		ON CONFLICT (serff_tracking, state) DO UPDATE SET
			carrier_id = COALESCE(EXCLUDED.carrier_id, hermes_filings.carrier_id),
			line_of_business = COALESCE(EXCLUDED.line_of_business, hermes_filings.line_of_business),
			filing_type = COALESCE(EXCLUDED.filing_type, hermes_filings.filing_type),
			status = COALESCE(EXCLUDED.status, hermes_filings.status),
			filed_date = COALESCE(EXCLUDED.filed_date, hermes_filings.filed_date),
			effective_date = COALESCE(EXCLUDED.effective_date, hermes_filings.effective_date),
			disposition_date = COALESCE(EXCLUDED.disposition_date, hermes_filings.disposition_date),
			overall_rate_change_pct = COALESCE(EXCLUDED.overall_rate_change_pct, hermes_filings.overall_rate_change_pct),
			raw_metadata = hermes_filings.raw_metadata || EXCLUDED.raw_metadata,
			updated_at = now()
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query,
		f.CarrierID, f.SERFFTracking, f.State, f.LineOfBusiness, f.FilingType, f.Status,
		f.FiledDate, f.EffectiveDate, f.DispositionDate, f.OverallRateChangePct,
		jsonValue(f.RawMetadata),
	).Scan(&id)
	if err != nil {
		return "", storageErr(err, "store: upsert filing "+f.SERFFTracking)
	}
	return id, nil
}

// FilingIDsByState preloads (tracking -> filing id) for a state.
func (s *Store) FilingIDsByState(ctx context.Context, state string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT serff_tracking, id FROM hermes_filings WHERE state = $1`, state)
	if err != nil {
		return nil, storageErr(err, "store: filing ids for "+state)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var tracking, id string
		if err := rows.Scan(&tracking, &id); err != nil {
			return nil, storageErr(err, "store: scan filing id")
		}
		out[tracking] = id
	}
	return out, storageErr(rows.Err(), "store: iterate filing ids")
}

// ScrapedTrackings returns tracking numbers already detail-scraped for a state,
// including permanently-failed ones (unauthorized / not_found). Those are
// excluded from future detail passes.
func (s *Store) ScrapedTrackings(ctx context.Context, state string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT serff_tracking FROM hermes_filings
		 WHERE state = $1
		   AND (raw_metadata->>'scrape_status' IN ('completed', 'unauthorized', 'not_found'))`,
		state)
	if err != nil {
		return nil, storageErr(err, "store: scraped trackings for "+state)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var tracking string
		if err := rows.Scan(&tracking); err != nil {
			return nil, storageErr(err, "store: scan scraped tracking")
		}
		out[tracking] = true
	}
	return out, storageErr(rows.Err(), "store: iterate scraped trackings")
}

// SetFilingScrapeStatus records the scrape status key in raw_metadata.
// Used both for completion and for permanent-failure marking.
func (s *Store) SetFilingScrapeStatus(ctx context.Context, filingID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_filings
		 SET raw_metadata = raw_metadata || jsonb_build_object('scrape_status', $2::text),
		     updated_at = now()
		 WHERE id = $1`,
		filingID, status)
	return storageErr(err, "store: set scrape status")
}

// MergeFilingMetadata unions harvested detail-page metadata into raw_metadata.
func (s *Store) MergeFilingMetadata(ctx context.Context, filingID string, meta map[string]any) error {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return storageErr(err, "store: marshal filing metadata")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE hermes_filings
		 SET raw_metadata = raw_metadata || $2::jsonb, updated_at = now()
		 WHERE id = $1`,
		filingID, raw)
	return storageErr(err, "store: merge filing metadata")
}

// LatestEffectiveFiling returns the most recent approved or effective filing
// for a (carrier, state, line) triple, or nil.
func (s *Store) LatestEffectiveFiling(ctx context.Context, carrierID, state, line string) (*Filing, error) {
	query := `SELECT id, carrier_id, serff_tracking, state,
			COALESCE(line_of_business, ''), COALESCE(filing_type, ''), COALESCE(status, ''),
			filed_date, effective_date, disposition_date, overall_rate_change_pct,
			raw_metadata, created_at, updated_at
		FROM hermes_filings
		WHERE carrier_id = $1 AND state = $2 AND line_of_business = $3
		  AND status = 'approved'
		ORDER BY COALESCE(effective_date, filed_date) DESC NULLS LAST
		LIMIT 1`
	return s.scanFiling(s.pool.QueryRow(ctx, query, carrierID, state, line))
}

// RecentWithdrawnCount counts withdrawn filings for a triple updated within
// the window.
func (s *Store) RecentWithdrawnCount(ctx context.Context, carrierID, state, line string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_filings
		 WHERE carrier_id = $1 AND state = $2 AND line_of_business = $3
		   AND status = 'withdrawn' AND updated_at >= $4`,
		carrierID, state, line, since,
	).Scan(&n)
	return n, storageErr(err, "store: recent withdrawn count")
}

// FilingStatus returns a filing's status, or "" when the filing is unknown.
func (s *Store) FilingStatus(ctx context.Context, filingID string) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(status, '') FROM hermes_filings WHERE id = $1`,
		filingID,
	).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return status, storageErr(err, "store: filing status")
}

// TripleFilingCount counts all filings for a triple.
func (s *Store) TripleFilingCount(ctx context.Context, carrierID, state, line string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_filings
		 WHERE carrier_id = $1 AND state = $2 AND line_of_business = $3`,
		carrierID, state, line,
	).Scan(&n)
	return n, storageErr(err, "store: triple filing count")
}

// ActiveTriples lists (carrier, state, line) triples with filings updated
// since the given time. Used by the shift detector task.
func (s *Store) ActiveTriples(ctx context.Context, since time.Time) ([]Triple, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT carrier_id, state, line_of_business
		 FROM hermes_filings
		 WHERE carrier_id IS NOT NULL AND line_of_business IS NOT NULL
		   AND updated_at >= $1`,
		since)
	if err != nil {
		return nil, storageErr(err, "store: active triples")
	}
	defer rows.Close()

	var out []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.CarrierID, &t.State, &t.Line); err != nil {
			return nil, storageErr(err, "store: scan triple")
		}
		out = append(out, t)
	}
	return out, storageErr(rows.Err(), "store: iterate triples")
}

// ParsedTriples lists triples whose documents were parsed since the given
// time. Used by the profile recompute task.
func (s *Store) ParsedTriples(ctx context.Context, since time.Time) ([]Triple, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT f.carrier_id, f.state, f.line_of_business
		 FROM hermes_filings f
		 JOIN hermes_filing_documents d ON d.filing_id = f.id
		 WHERE f.carrier_id IS NOT NULL AND f.line_of_business IS NOT NULL
		   AND d.parsed_flag AND d.updated_at >= $1`,
		since)
	if err != nil {
		return nil, storageErr(err, "store: parsed triples")
	}
	defer rows.Close()

	var out []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.CarrierID, &t.State, &t.Line); err != nil {
			return nil, storageErr(err, "store: scan parsed triple")
		}
		out = append(out, t)
	}
	return out, storageErr(rows.Err(), "store: iterate parsed triples")
}

// ReportPairs lists distinct (state, line) pairs with filings in the window.
func (s *Store) ReportPairs(ctx context.Context, since time.Time) ([][2]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT state, line_of_business FROM hermes_filings
		 WHERE line_of_business IS NOT NULL AND COALESCE(filed_date, created_at::date) >= $1::date`,
		since)
	if err != nil {
		return nil, storageErr(err, "store: report pairs")
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var state, line string
		if err := rows.Scan(&state, &line); err != nil {
			return nil, storageErr(err, "store: scan report pair")
		}
		out = append(out, [2]string{state, line})
	}
	return out, storageErr(rows.Err(), "store: iterate report pairs")
}

// Triple identifies a (carrier, state, line) combination.
type Triple struct {
	CarrierID string
	State     string
	Line      string
}

func (s *Store) scanFiling(row pgx.Row) (*Filing, error) {
	var f Filing
	var rawMeta []byte
	err := row.Scan(&f.ID, &f.CarrierID, &f.SERFFTracking, &f.State,
		&f.LineOfBusiness, &f.FilingType, &f.Status,
		&f.FiledDate, &f.EffectiveDate, &f.DispositionDate, &f.OverallRateChangePct,
		&rawMeta, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: scan filing")
	}
	if rawMeta != nil {
		_ = json.Unmarshal(rawMeta, &f.RawMetadata)
	}
	return &f, nil
}
