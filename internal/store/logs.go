package store

import (
	"context"
	"encoding/json"
	"time"
)

// StartScrapeLog opens a scrape run row and returns its id.
func (s *Store) StartScrapeLog(ctx context.Context, state, pass string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hermes_scrape_log (state, pass, status) VALUES ($1, $2, 'running') RETURNING id`,
		state, pass,
	).Scan(&id)
	return id, storageErr(err, "store: start scrape log")
}

// CompleteScrapeLog closes a scrape run as complete with its counters.
func (s *Store) CompleteScrapeLog(ctx context.Context, id int64, found, scraped, docs int, errs []string, meta map[string]any) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_scrape_log
		 SET status = 'complete', completed_at = now(),
		     filings_found = $2, filings_scraped = $3, docs_downloaded = $4,
		     errors = $5, metadata = metadata || $6
		 WHERE id = $1`,
		id, found, scraped, docs, jsonValue(emptySlice(errs)), jsonValue(meta))
	return storageErr(err, "store: complete scrape log")
}

// FailScrapeLog closes a scrape run as failed, appending the terminal error.
func (s *Store) FailScrapeLog(ctx context.Context, id int64, cause string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_scrape_log
		 SET status = 'failed', completed_at = now(), errors = errors || $2
		 WHERE id = $1`,
		id, jsonValue([]string{cause}))
	return storageErr(err, "store: fail scrape log")
}

// StuckScrapeRuns counts running scrape rows older than the cutoff. Feeds the
// health check.
func (s *Store) StuckScrapeRuns(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_scrape_log WHERE status = 'running' AND started_at < $1`,
		olderThan,
	).Scan(&n)
	return n, storageErr(err, "store: stuck scrape runs")
}

// RecentScrapeLogs returns the newest scrape runs, newest first.
func (s *Store) RecentScrapeLogs(ctx context.Context, limit int) ([]ScrapeLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, state, pass, status, started_at, completed_at,
		        filings_found, filings_scraped, docs_downloaded, errors, metadata
		 FROM hermes_scrape_log
		 ORDER BY started_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr(err, "store: recent scrape logs")
	}
	defer rows.Close()

	var logs []ScrapeLog
	for rows.Next() {
		var l ScrapeLog
		var rawErrs, rawMeta []byte
		if err := rows.Scan(&l.ID, &l.State, &l.Pass, &l.Status, &l.StartedAt, &l.CompletedAt,
			&l.FilingsFound, &l.FilingsScraped, &l.DocsDownloaded, &rawErrs, &rawMeta); err != nil {
			return nil, storageErr(err, "store: scan scrape log")
		}
		if len(rawErrs) > 0 {
			_ = json.Unmarshal(rawErrs, &l.Errors)
		}
		if len(rawMeta) > 0 {
			_ = json.Unmarshal(rawMeta, &l.Metadata)
		}
		logs = append(logs, l)
	}
	return logs, storageErr(rows.Err(), "store: recent scrape logs")
}

// ParseStatusCounts buckets parse runs in the window by their status.
func (s *Store) ParseStatusCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM hermes_parse_log WHERE created_at >= $1 GROUP BY status`,
		since)
	if err != nil {
		return nil, storageErr(err, "store: parse status counts")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr(err, "store: scan parse status count")
		}
		counts[status] = n
	}
	return counts, storageErr(rows.Err(), "store: parse status counts")
}

// InsertParseLog records the outcome of one document parse.
func (s *Store) InsertParseLog(ctx context.Context, l ParseLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hermes_parse_log
		 (document_id, parser_type, status, items_by_kind, confidence_avg, confidence_min,
		  ai_calls, ai_tokens_in, ai_tokens_out, cost_usd, errors, warnings, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.DocumentID, l.ParserType, l.Status, jsonValue(l.ItemsByKind),
		l.ConfidenceAvg, l.ConfidenceMin, l.AICalls, l.AITokensIn, l.AITokensOut,
		l.CostUSD, jsonValue(emptySlice(l.Errors)), jsonValue(emptySlice(l.Warnings)), l.DurationMS)
	return storageErr(err, "store: insert parse log")
}

// ParseCostSince sums LLM spend over the window.
func (s *Store) ParseCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(cost_usd), 0) FROM hermes_parse_log WHERE created_at >= $1`,
		since,
	).Scan(&total)
	return total, storageErr(err, "store: parse cost since")
}

// InsertQuoteLog records a pricing call. Best-effort; callers log and drop the
// error so a log failure never fails a quote.
func (s *Store) InsertQuoteLog(ctx context.Context, l QuoteLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hermes_quote_log (product_line, request, summary, best_carrier, best_rate, elapsed_ms)
		 VALUES ($1, COALESCE($2, '{}'::jsonb), COALESCE($3, '{}'::jsonb), NULLIF($4, ''), $5, $6)`,
		l.ProductLine, l.Request, l.Summary, l.BestCarrier, l.BestRate, l.ElapsedMS)
	return storageErr(err, "store: insert quote log")
}
