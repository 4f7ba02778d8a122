package store

import "context"

// EnqueueReview adds a low-confidence extraction to the review queue.
// Best-effort; parsing continues even when the enqueue fails.
func (s *Store) EnqueueReview(ctx context.Context, item ReviewItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hermes_parse_review_queue (document_id, field_path, field_value, confidence, priority)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		item.DocumentID, item.FieldPath, item.FieldValue, item.Confidence, item.Priority)
	return storageErr(err, "store: enqueue review")
}

// OpenReviewItems lists unresolved review items, high priority first.
func (s *Store) OpenReviewItems(ctx context.Context, limit int) ([]ReviewItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, field_path, COALESCE(field_value, ''), confidence, priority, resolved, created_at
		 FROM hermes_parse_review_queue
		 WHERE NOT resolved
		 ORDER BY (priority = 'high') DESC, created_at
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, storageErr(err, "store: open review items")
	}
	defer rows.Close()

	var out []ReviewItem
	for rows.Next() {
		var item ReviewItem
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.FieldPath, &item.FieldValue,
			&item.Confidence, &item.Priority, &item.Resolved, &item.CreatedAt); err != nil {
			return nil, storageErr(err, "store: scan review item")
		}
		out = append(out, item)
	}
	return out, storageErr(rows.Err(), "store: iterate review items")
}

// ResolveReview marks a review item as handled.
func (s *Store) ResolveReview(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_parse_review_queue SET resolved = true WHERE id = $1`, id)
	return storageErr(err, "store: resolve review")
}
