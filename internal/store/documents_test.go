package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimUnparsedStampsClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 8, 19, 4, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)UPDATE hermes_filing_documents SET parse_claimed_at = now\(\).*FOR UPDATE SKIP LOCKED`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "filing_id", "document_name", "local_path", "file_size_bytes",
			"mime_type", "checksum_sha256", "document_type", "parsed_flag",
			"parse_confidence", "created_at", "updated_at",
		}).AddRow(
			"doc-1", "filing-1", "rates.pdf", "/data/rates.pdf", int64(120_000),
			"application/pdf", "abc123", "rate", false, nil, created, created,
		))

	st := New(mock)
	docs, err := st.ClaimUnparsed(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "/data/rates.pdf", docs[0].LocalPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimUnparsedSkipsFreshClaims(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// A batch claimed by another run inside the claim window comes back empty.
	mock.ExpectQuery(`parse_claimed_at IS NULL OR parse_claimed_at < now\(\) - interval '30 minutes'`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "filing_id", "document_name", "local_path", "file_size_bytes",
			"mime_type", "checksum_sha256", "document_type", "parsed_flag",
			"parse_confidence", "created_at", "updated_at",
		}))

	st := New(mock)
	docs, err := st.ClaimUnparsed(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkParsedReleasesClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`SET parsed_flag = true, parse_confidence = \$2, parse_claimed_at = NULL`).
		WithArgs("doc-1", 0.91).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	st := New(mock)
	require.NoError(t, st.MarkParsed(context.Background(), "doc-1", 0.91))
	assert.NoError(t, mock.ExpectationsWereMet())
}
