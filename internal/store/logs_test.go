package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartScrapeLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO hermes_scrape_log").
		WithArgs("TX", "incremental").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	st := New(mock)
	id, err := st.StartScrapeLog(context.Background(), "TX", "incremental")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteScrapeLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE hermes_scrape_log").
		WithArgs(int64(7), 120, 118, 340, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	st := New(mock)
	err = st.CompleteScrapeLog(context.Background(), 7, 120, 118, 340, nil,
		map[string]any{"duration_secs": 90})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailScrapeLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE hermes_scrape_log").
		WithArgs(int64(9), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	st := New(mock)
	err = st.FailScrapeLog(context.Background(), 9, "portal blocked")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentScrapeLogs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	completed := started.Add(40 * time.Minute)

	mock.ExpectQuery("FROM hermes_scrape_log").
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "state", "pass", "status", "started_at", "completed_at",
			"filings_found", "filings_scraped", "docs_downloaded", "errors", "metadata",
		}).AddRow(
			int64(3), "TX", "incremental", "complete", started, &completed,
			120, 118, 340, []byte(`["detail timeout"]`), []byte(`{"skipped":[]}`),
		))

	st := New(mock)
	logs, err := st.RecentScrapeLogs(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "TX", logs[0].State)
	assert.Equal(t, "complete", logs[0].Status)
	assert.Equal(t, 118, logs[0].FilingsScraped)
	assert.Equal(t, []string{"detail timeout"}, logs[0].Errors)
	require.NotNil(t, logs[0].CompletedAt)
	assert.Equal(t, completed, *logs[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseStatusCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Now().AddDate(0, 0, -7)
	mock.ExpectQuery("FROM hermes_parse_log").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("completed", 40).
			AddRow("partial", 3).
			AddRow("failed", 2))

	st := New(mock)
	counts, err := st.ParseStatusCounts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"completed": 40, "partial": 3, "failed": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStuckScrapeRuns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Now().Add(-6 * time.Hour)
	mock.ExpectQuery("SELECT count").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	st := New(mock)
	n, err := st.StuckScrapeRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertQuoteLogNeverRequiresBody(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO hermes_quote_log").
		WithArgs("pmi", pgxmock.AnyArg(), pgxmock.AnyArg(), "Acme MI", 0.62, int64(12)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	st := New(mock)
	err = st.InsertQuoteLog(context.Background(), QuoteLog{
		ProductLine: "pmi",
		BestCarrier: "Acme MI",
		BestRate:    0.62,
		ElapsedMS:   12,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
