package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/hermes-intel/hermes/internal/db"
	"github.com/hermes-intel/hermes/internal/resilience"
)

// Store provides typed persistence over the shared pool. Methods issue their
// own statements against the pool (raw mode, independent commit boundaries);
// Session groups writes under one transaction.
type Store struct {
	pool db.Pool
}

// New creates a Store backed by the given pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers that need direct queries.
func (s *Store) Pool() db.Pool {
	return s.pool
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storageErr(err, "store: ping")
	}
	return nil
}

// Session runs fn inside a single transaction. All store writes issued
// through the session's Store share one commit boundary.
func (s *Store) Session(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(err, "store: begin session")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, New(txPool{tx})); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(err, "store: commit session")
	}
	return nil
}

// txPool adapts a pgx.Tx to the db.Pool interface so a Store can run inside
// a transaction. Ping and nested Begin fall through to the tx (savepoint).
type txPool struct {
	tx pgx.Tx
}

func (p txPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.tx.Query(ctx, sql, args...)
}

func (p txPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.tx.QueryRow(ctx, sql, args...)
}

func (p txPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.tx.Exec(ctx, sql, args...)
}

func (p txPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.tx.Begin(ctx)
}

func (p txPool) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return p.tx.CopyFrom(ctx, table, cols, src)
}

func (p txPool) Ping(ctx context.Context) error {
	return nil
}

// storageErr wraps any database failure as the single "storage" error kind.
func storageErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return resilience.WithKind(resilience.KindStorage, eris.Wrap(err, msg))
}

// jsonValue converts a value to JSONB-ready json.RawMessage.
func jsonValue(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
