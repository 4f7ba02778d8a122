package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertSignal records one appetite signal. Signals are append-only.
func (s *Store) InsertSignal(ctx context.Context, sig AppetiteSignal) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hermes_appetite_signals
		 (profile_id, carrier_id, state, signal_type, strength, signal_date, description, source_filing)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, CURRENT_DATE), NULLIF($7, ''), $8)
		 RETURNING id`,
		sig.ProfileID, sig.CarrierID, sig.State, sig.SignalType, sig.Strength,
		nilIfZeroTime(sig.SignalDate), sig.Description, sig.SourceFiling,
	).Scan(&id)
	if err != nil {
		return "", storageErr(err, "store: insert signal "+sig.SignalType)
	}
	return id, nil
}

// HasRecentSignal reports whether the same signal type already fired for the
// (carrier, state) pair within the window. Used to deduplicate detector runs.
func (s *Store) HasRecentSignal(ctx context.Context, carrierID, state, signalType string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM hermes_appetite_signals
			WHERE carrier_id = $1 AND state = $2 AND signal_type = $3 AND created_at >= $4)`,
		carrierID, state, signalType, since,
	).Scan(&exists)
	return exists, storageErr(err, "store: recent signal check")
}

// UnacknowledgedSignals lists unacknowledged signals at or above minStrength,
// strongest first.
func (s *Store) UnacknowledgedSignals(ctx context.Context, minStrength int) ([]AppetiteSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, profile_id, carrier_id, state, signal_type, strength,
			signal_date, COALESCE(description, ''), source_filing, acknowledged, created_at
		 FROM hermes_appetite_signals
		 WHERE NOT acknowledged AND strength >= $1
		 ORDER BY strength DESC, created_at DESC`,
		minStrength)
	if err != nil {
		return nil, storageErr(err, "store: unacknowledged signals")
	}
	defer rows.Close()
	return scanSignals(rows)
}

// SignalsSince lists signals for a (state, line-agnostic) window, strongest
// first, capped at limit. Used for digests and market reports.
func (s *Store) SignalsSince(ctx context.Context, state string, since time.Time, limit int) ([]AppetiteSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, profile_id, carrier_id, state, signal_type, strength,
			signal_date, COALESCE(description, ''), source_filing, acknowledged, created_at
		 FROM hermes_appetite_signals
		 WHERE state = $1 AND created_at >= $2
		 ORDER BY strength DESC, created_at DESC
		 LIMIT $3`,
		state, since, limit)
	if err != nil {
		return nil, storageErr(err, "store: signals since")
	}
	defer rows.Close()
	return scanSignals(rows)
}

// AcknowledgeSignal marks a signal as handled.
func (s *Store) AcknowledgeSignal(ctx context.Context, signalID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE hermes_appetite_signals SET acknowledged = true WHERE id = $1`, signalID)
	return storageErr(err, "store: acknowledge signal")
}

// UnackedHighSeverityCount counts unacknowledged signals at or above strength 7
// older than the cutoff. Feeds the health check.
func (s *Store) UnackedHighSeverityCount(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM hermes_appetite_signals
		 WHERE NOT acknowledged AND strength >= 7 AND created_at < $1`,
		olderThan,
	).Scan(&n)
	return n, storageErr(err, "store: unacked high severity count")
}

func scanSignals(rows pgx.Rows) ([]AppetiteSignal, error) {
	var out []AppetiteSignal
	for rows.Next() {
		var sig AppetiteSignal
		if err := rows.Scan(&sig.ID, &sig.ProfileID, &sig.CarrierID, &sig.State,
			&sig.SignalType, &sig.Strength, &sig.SignalDate, &sig.Description,
			&sig.SourceFiling, &sig.Acknowledged, &sig.CreatedAt); err != nil {
			return nil, storageErr(err, "store: scan signal")
		}
		out = append(out, sig)
	}
	return out, storageErr(rows.Err(), "store: iterate signals")
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
