package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// UpsertDocument inserts or updates a filing document by (filing, name).
// A re-download with identical bytes keeps the same checksum; changed bytes
// update both checksum and size.
func (s *Store) UpsertDocument(ctx context.Context, d FilingDocument) (string, error) {
	query := `INSERT INTO hermes_filing_documents
		(filing_id, document_name, local_path, file_size_bytes, mime_type, checksum_sha256, document_type)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (filing_id, document_name) DO UPDATE SET
			local_path = COALESCE(EXCLUDED.local_path, hermes_filing_documents.local_path),
			file_size_bytes = COALESCE(EXCLUDED.file_size_bytes, hermes_filing_documents.file_size_bytes),
			mime_type = COALESCE(EXCLUDED.mime_type, hermes_filing_documents.mime_type),
			checksum_sha256 = COALESCE(EXCLUDED.checksum_sha256, hermes_filing_documents.checksum_sha256),
			document_type = COALESCE(EXCLUDED.document_type, hermes_filing_documents.document_type),
			updated_at = now()
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query,
		d.FilingID, d.DocumentName, d.LocalPath, d.FileSizeBytes,
		d.MIMEType, d.ChecksumSHA256, d.DocumentType,
	).Scan(&id)
	if err != nil {
		return "", storageErr(err, "store: upsert document "+d.DocumentName)
	}
	return id, nil
}

// ClaimUnparsed stamps up to limit unparsed documents with a local file as
// in-flight and returns them, oldest first. Claimed rows are skipped by
// concurrent claimers until the claim expires, so a crashed run releases its
// batch after thirty minutes.
func (s *Store) ClaimUnparsed(ctx context.Context, limit int) ([]FilingDocument, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE hermes_filing_documents SET parse_claimed_at = now()
		 WHERE id IN (
			SELECT id FROM hermes_filing_documents
			WHERE NOT parsed_flag AND local_path IS NOT NULL
			  AND (parse_claimed_at IS NULL OR parse_claimed_at < now() - interval '30 minutes')
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED)
		 RETURNING id, filing_id, document_name, COALESCE(local_path, ''),
			COALESCE(file_size_bytes, 0), COALESCE(mime_type, ''),
			COALESCE(checksum_sha256, ''), COALESCE(document_type, ''),
			parsed_flag, parse_confidence, created_at, updated_at`,
		limit)
	if err != nil {
		return nil, storageErr(err, "store: claim unparsed")
	}
	defer rows.Close()

	var docs []FilingDocument
	for rows.Next() {
		var d FilingDocument
		if err := rows.Scan(&d.ID, &d.FilingID, &d.DocumentName, &d.LocalPath,
			&d.FileSizeBytes, &d.MIMEType, &d.ChecksumSHA256, &d.DocumentType,
			&d.ParsedFlag, &d.ParseConfidence, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, storageErr(err, "store: scan unparsed document")
		}
		docs = append(docs, d)
	}
	return docs, storageErr(rows.Err(), "store: iterate unparsed documents")
}

// MarkParsed flips parsed_flag, records the confidence, and releases the
// parse claim for a document.
func (s *Store) MarkParsed(ctx context.Context, documentID string, confidence float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_filing_documents
		 SET parsed_flag = true, parse_confidence = $2, parse_claimed_at = NULL, updated_at = now()
		 WHERE id = $1`,
		documentID, confidence)
	return storageErr(err, "store: mark parsed")
}

// UnparsedBacklog counts documents awaiting parse.
func (s *Store) UnparsedBacklog(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_filing_documents WHERE NOT parsed_flag AND local_path IS NOT NULL`,
	).Scan(&n)
	return n, storageErr(err, "store: unparsed backlog")
}

// GetDocument loads a document by id. Returns nil if absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*FilingDocument, error) {
	var d FilingDocument
	err := s.pool.QueryRow(ctx,
		`SELECT id, filing_id, document_name, COALESCE(local_path, ''),
			COALESCE(file_size_bytes, 0), COALESCE(mime_type, ''),
			COALESCE(checksum_sha256, ''), COALESCE(document_type, ''),
			parsed_flag, parse_confidence, created_at, updated_at
		 FROM hermes_filing_documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.FilingID, &d.DocumentName, &d.LocalPath,
		&d.FileSizeBytes, &d.MIMEType, &d.ChecksumSHA256, &d.DocumentType,
		&d.ParsedFlag, &d.ParseConfidence, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: get document")
	}
	return &d, nil
}
