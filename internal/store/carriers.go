package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// UpsertCarrier inserts or updates a carrier by NAIC code and returns its id.
// Non-null inbound columns win; nulls preserve the existing value.
func (s *Store) UpsertCarrier(ctx context.Context, c Carrier) (string, error) {
	query := `INSERT INTO hermes_carriers (naic_code, legal_name, domicile_state, am_best_rating)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (naic_code) DO UPDATE SET
			legal_name = COALESCE(NULLIF(EXCLUDED.legal_name, ''), hermes_carriers.legal_name),
			domicile_state = COALESCE(EXCLUDED.domicile_state, hermes_carriers.domicile_state),
			am_best_rating = COALESCE(EXCLUDED.am_best_rating, hermes_carriers.am_best_rating),
			updated_at = now()
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query, c.NAICCode, c.LegalName, c.Domicile, c.Rating).Scan(&id)
	if err != nil {
		return "", storageErr(err, "store: upsert carrier "+c.NAICCode)
	}
	return id, nil
}

// GetCarrierByNAIC loads a carrier by NAIC code. Returns nil if absent.
func (s *Store) GetCarrierByNAIC(ctx context.Context, naic string) (*Carrier, error) {
	var c Carrier
	err := s.pool.QueryRow(ctx,
		`SELECT id, naic_code, legal_name, COALESCE(domicile_state, ''), COALESCE(am_best_rating, ''), created_at, updated_at
		 FROM hermes_carriers WHERE naic_code = $1`, naic,
	).Scan(&c.ID, &c.NAICCode, &c.LegalName, &c.Domicile, &c.Rating, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr(err, "store: get carrier "+naic)
	}
	return &c, nil
}

// CarrierName returns the legal name for a carrier id, or "" if unknown.
func (s *Store) CarrierName(ctx context.Context, carrierID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT legal_name FROM hermes_carriers WHERE id = $1`, carrierID,
	).Scan(&name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", storageErr(err, "store: carrier name")
	}
	return name, nil
}
