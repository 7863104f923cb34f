package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/hdbexport/internal/errs"
)

// MapErrorFunc translates a native driver error into *errs.Error.
type MapErrorFunc func(err error, msg string) *errs.Error

// SQLConn adapts one pinned database/sql connection to Conn. database/sql
// always hands out a pool; SQLConn caps it at one connection and holds that
// connection for its whole life, so callers see a single session.
type SQLConn struct {
	db       *sql.DB
	conn     *sql.Conn
	mapError MapErrorFunc
}

// NewSQLConn acquires a connection from db. On failure db is closed.
func NewSQLConn(ctx context.Context, db *sql.DB, mapError MapErrorFunc) (*SQLConn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, mapError(err, "connect failed")
	}
	return &SQLConn{db: db, conn: conn, mapError: mapError}, nil
}

// Query executes query on the pinned connection.
func (c *SQLConn) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, c.mapError(err, "query failed")
	}
	return &sqlRows{rows: rows, mapError: c.mapError}, nil
}

// Ping verifies the pinned connection is alive.
func (c *SQLConn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return c.mapError(err, "ping failed")
	}
	return nil
}

// Close returns the connection and shuts the pool down.
func (c *SQLConn) Close(_ context.Context) error {
	err := errors.Join(c.conn.Close(), c.db.Close())
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "close failed", err)
	}
	return nil
}

// --- sql.Rows wrapper ---

type sqlRows struct {
	rows     *sql.Rows
	mapError MapErrorFunc
}

func (r *sqlRows) Next() bool { return r.rows.Next() }
func (r *sqlRows) Close()     { _ = r.rows.Close() }

func (r *sqlRows) Columns() ([]string, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, r.mapError(err, "failed to read column names")
	}
	return cols, nil
}

func (r *sqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return r.mapError(err, "failed to scan row")
	}
	return nil
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapError(err, "error during row iteration")
	}
	return nil
}
