// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL driver and isolation behavior.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// SQL keeps documents in the single document table created by
// db.CreateSchema.
type SQL struct {
	db         *sql.DB
	dialect    Dialect
	logger     *slog.Logger
	metrics    *txnMetrics
	maxRetries int
}

type SQLOptionFunc func(*SQL)

func WithSQLLogger(logger *slog.Logger) SQLOptionFunc {
	return func(s *SQL) {
		s.logger = logger
	}
}

func WithSQLPromRegistry(registry prometheus.Registerer) SQLOptionFunc {
	return func(s *SQL) {
		s.metrics = newTxnMetrics(registry, string(s.dialect))
	}
}

func WithSQLMaxRetries(n int) SQLOptionFunc {
	return func(s *SQL) {
		s.maxRetries = n
	}
}

// OpenSQL opens a connection pool for the dialect. SQLite gets a single
// connection, which serializes its writers.
func OpenSQL(dialect Dialect, url string) (*sql.DB, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
	conn, err := sql.Open(string(dialect), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}
	return conn, nil
}

// NewSQL wraps an open pool. The schema must already exist.
func NewSQL(db *sql.DB, dialect Dialect, opts ...SQLOptionFunc) *SQL {
	s := &SQL{
		db:         db,
		dialect:    dialect,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

func (s *SQL) txOptions(readOnly bool) *sql.TxOptions {
	if s.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly}
	}
	// SQLite transactions are already serializable
	return nil
}

// Update runs fn in a serializable transaction and re-runs it on a
// serialization failure or a busy database.
func (s *SQL) Update(ctx context.Context, fn func(Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := s.do(ctx, false, fn)
		if !s.isConflict(err) {
			return err
		}
		s.metrics.retry()
		if attempt+1 >= s.maxRetries {
			s.metrics.exhausted()
			return fmt.Errorf("%w: %w", ErrContention, err)
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt+1, "dialect", s.dialect)
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (s *SQL) View(ctx context.Context, fn func(Txn) error) error {
	return s.do(ctx, true, fn)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) do(ctx context.Context, readOnly bool, fn func(Txn) error) error {
	tx, err := s.db.BeginTx(ctx, s.txOptions(readOnly))
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlTxn{ctx: ctx, tx: tx, dialect: s.dialect, readOnly: readOnly}); err != nil {
		if err2 := tx.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (s *SQL) isConflict(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

type sqlTxn struct {
	ctx      context.Context
	tx       *sql.Tx
	dialect  Dialect
	readOnly bool
}

// rebind turns $N placeholders into SQLite's ?N form.
func (t *sqlTxn) rebind(query string) string {
	if t.dialect == SQLite {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

var errReadOnly = errors.New("write in read-only transaction")

func (t *sqlTxn) Get(key Key, v any) (bool, error) {
	var payload []byte
	err := t.tx.QueryRowContext(t.ctx,
		t.rebind(`SELECT payload FROM document WHERE collection = $1 AND id = $2`),
		string(key.Collection), key.ID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := Decode(payload, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (t *sqlTxn) Put(key Key, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, t.rebind(`
		INSERT INTO document (collection, id, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET payload = excluded.payload, updated_at = excluded.updated_at
	`), string(key.Collection), key.ID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (t *sqlTxn) Create(key Key, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, t.rebind(`
		INSERT INTO document (collection, id, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO NOTHING
	`), string(key.Collection), key.ID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	return nil
}

func (t *sqlTxn) Delete(key Key) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx,
		t.rebind(`DELETE FROM document WHERE collection = $1 AND id = $2`),
		string(key.Collection), key.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (t *sqlTxn) List(c Collection, prefix string, fn func(id string, data []byte) error) error {
	type row struct {
		id      string
		payload []byte
	}
	rows, err := t.tx.QueryContext(t.ctx, t.rebind(`
		SELECT id, payload FROM document
		WHERE collection = $1 AND substr(id, 1, $2) = $3
		ORDER BY id
	`), string(c), len(prefix), prefix)
	if err != nil {
		return fmt.Errorf("failed to list %s/%s: %w", c, prefix, err)
	}
	// Drain before calling fn so it can issue its own statements on tx
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s: %w", c, err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to list %s/%s: %w", c, prefix, err)
	}
	rows.Close()

	for _, r := range found {
		if err := fn(r.id, r.payload); err != nil {
			return err
		}
	}
	return nil
}
