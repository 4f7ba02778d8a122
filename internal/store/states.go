package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// EnabledStates lists scrape-enabled state codes in alphabetical order.
func (s *Store) EnabledStates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM hermes_scrape_states WHERE enabled ORDER BY state`)
	if err != nil {
		return nil, storageErr(err, "store: enabled states")
	}
	defer rows.Close()
	return scanStrings(rows)
}

// EnableState registers a state for scraping (idempotent).
func (s *Store) EnableState(ctx context.Context, state string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hermes_scrape_states (state, enabled) VALUES ($1, true)
		 ON CONFLICT (state) DO UPDATE SET enabled = true, updated_at = now()`,
		state)
	return storageErr(err, "store: enable state")
}

// DisableState turns a state off without losing its scrape history.
func (s *Store) DisableState(ctx context.Context, state string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_scrape_states SET enabled = false, updated_at = now() WHERE state = $1`,
		state)
	return storageErr(err, "store: disable state")
}

// LastScrapedAt returns the state's high-water mark, or nil if never scraped.
func (s *Store) LastScrapedAt(ctx context.Context, state string) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_scraped_at FROM hermes_scrape_states WHERE state = $1`, state,
	).Scan(&t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: last scraped at")
	}
	return t, nil
}

// AdvanceLastScraped moves the high-water mark forward. Never moves it back.
func (s *Store) AdvanceLastScraped(ctx context.Context, state string, to time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_scrape_states
		 SET last_scraped_at = GREATEST(COALESCE(last_scraped_at, 'epoch'::timestamptz), $2),
		     updated_at = now()
		 WHERE state = $1`,
		state, to)
	return storageErr(err, "store: advance last scraped")
}
