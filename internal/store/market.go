package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertMarketIntel writes the computed report row for (state, line, window),
// replacing the previous computation.
func (s *Store) UpsertMarketIntel(ctx context.Context, m MarketIntel) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hermes_market_intel
		 (state, line_of_business, period_days, filing_count,
		  avg_rate_change_pct, median_rate_change_pct, rate_increases, rate_decreases,
		  new_entrants, withdrawals, top_signals, market_trend, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), now())
		 ON CONFLICT (state, line_of_business, period_days) DO UPDATE SET
			filing_count = EXCLUDED.filing_count,
			avg_rate_change_pct = EXCLUDED.avg_rate_change_pct,
			median_rate_change_pct = EXCLUDED.median_rate_change_pct,
			rate_increases = EXCLUDED.rate_increases,
			rate_decreases = EXCLUDED.rate_decreases,
			new_entrants = EXCLUDED.new_entrants,
			withdrawals = EXCLUDED.withdrawals,
			top_signals = EXCLUDED.top_signals,
			market_trend = EXCLUDED.market_trend,
			computed_at = now()
		 RETURNING id`,
		m.State, m.LineOfBusiness, m.PeriodDays, m.FilingCount,
		m.AvgRateChangePct, m.MedianRateChangePct, m.RateIncreases, m.RateDecreases,
		jsonValue(emptySlice(m.NewEntrants)), jsonValue(emptySlice(m.Withdrawals)),
		jsonValue(emptySignals(m.TopSignals)), m.MarketTrend,
	).Scan(&id)
	if err != nil {
		return "", storageErr(err, "store: upsert market intel")
	}
	return id, nil
}

// GetMarketIntel loads the report row for (state, line, window), or nil.
func (s *Store) GetMarketIntel(ctx context.Context, state, line string, periodDays int) (*MarketIntel, error) {
	var m MarketIntel
	var entrants, withdrawals, signals []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, state, line_of_business, period_days, filing_count,
			avg_rate_change_pct, median_rate_change_pct, rate_increases, rate_decreases,
			new_entrants, withdrawals, top_signals, COALESCE(market_trend, ''), computed_at
		 FROM hermes_market_intel
		 WHERE state = $1 AND line_of_business = $2 AND period_days = $3`,
		state, line, periodDays,
	).Scan(&m.ID, &m.State, &m.LineOfBusiness, &m.PeriodDays, &m.FilingCount,
		&m.AvgRateChangePct, &m.MedianRateChangePct, &m.RateIncreases, &m.RateDecreases,
		&entrants, &withdrawals, &signals, &m.MarketTrend, &m.ComputedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: get market intel")
	}
	_ = json.Unmarshal(entrants, &m.NewEntrants)
	_ = json.Unmarshal(withdrawals, &m.Withdrawals)
	_ = json.Unmarshal(signals, &m.TopSignals)
	return &m, nil
}

// RateChangeStats aggregates filing activity for a (state, line) over the
// window: count, per-direction counts, and all non-null rate change values
// ordered ascending (callers derive avg/median from the slice).
func (s *Store) RateChangeStats(ctx context.Context, state, line string, since time.Time) (filingCount int, changes []float64, err error) {
	e := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_filings
		 WHERE state = $1 AND line_of_business = $2
		   AND COALESCE(filed_date, created_at::date) >= $3::date`,
		state, line, since,
	).Scan(&filingCount)
	if e != nil {
		return 0, nil, storageErr(e, "store: filing count")
	}

	rows, e := s.pool.Query(ctx,
		`SELECT overall_rate_change_pct FROM hermes_filings
		 WHERE state = $1 AND line_of_business = $2
		   AND COALESCE(filed_date, created_at::date) >= $3::date
		   AND overall_rate_change_pct IS NOT NULL
		 ORDER BY overall_rate_change_pct`,
		state, line, since)
	if e != nil {
		return 0, nil, storageErr(e, "store: rate change stats")
	}
	defer rows.Close()

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, nil, storageErr(err, "store: scan rate change")
		}
		changes = append(changes, v)
	}
	return filingCount, changes, storageErr(rows.Err(), "store: iterate rate changes")
}

// NewEntrants lists carrier names whose first filing in the (state, line)
// falls inside the window.
func (s *Store) NewEntrants(ctx context.Context, state, line string, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.legal_name
		 FROM hermes_filings f
		 JOIN hermes_carriers c ON c.id = f.carrier_id
		 WHERE f.state = $1 AND f.line_of_business = $2
		 GROUP BY c.id, c.legal_name
		 HAVING min(COALESCE(f.filed_date, f.created_at::date)) >= $3::date
		 ORDER BY c.legal_name`,
		state, line, since)
	if err != nil {
		return nil, storageErr(err, "store: new entrants")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Withdrawals lists carrier names with withdrawal filings in the window.
func (s *Store) Withdrawals(ctx context.Context, state, line string, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.legal_name
		 FROM hermes_filings f
		 JOIN hermes_carriers c ON c.id = f.carrier_id
		 WHERE f.state = $1 AND f.line_of_business = $2
		   AND (f.filing_type = 'withdrawal' OR f.status = 'withdrawn')
		   AND f.updated_at >= $3
		 ORDER BY c.legal_name`,
		state, line, since)
	if err != nil {
		return nil, storageErr(err, "store: withdrawals")
	}
	defer rows.Close()
	return scanStrings(rows)
}

func emptySignals(s []map[string]any) []map[string]any {
	if s == nil {
		return []map[string]any{}
	}
	return s
}
