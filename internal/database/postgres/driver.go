// Package postgres opens single PostgreSQL connections with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/errs"
)

const defaultDatabase = "postgres"

// Conn is a database.Conn over one pgx connection (no pool).
type Conn struct {
	conn *pgx.Conn
}

// Open connects to PostgreSQL. It satisfies database.Opener.
func Open(ctx context.Context, cfg *database.Config) (database.Conn, error) {
	connCfg, err := pgx.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid postgres config", err)
	}
	// Set after parsing so quoting in the DSN cannot mangle credentials.
	connCfg.User = cfg.User
	connCfg.Password = cfg.Password
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapError(err, "connect failed")
	}
	return &Conn{conn: conn}, nil
}

// buildDSN constructs the keyword/value connection string without credentials.
func buildDSN(cfg *database.Config) string {
	db := cfg.Database
	if db == "" {
		db = defaultDatabase
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s sslmode=prefer", cfg.Host, cfg.Port, db)
}

// Query executes sql and returns its rows.
func (c *Conn) Query(ctx context.Context, sql string) (database.Rows, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// Ping verifies the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close terminates the session.
func (c *Conn) Close(ctx context.Context) error {
	if err := c.conn.Close(ctx); err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "close failed", err)
	}
	return nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE class to an error kind.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
func classifySQLState(code string) errs.ErrKind {
	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case "08": // connection exception
		return errs.ErrKindConnectionFailed
	case "28": // invalid authorization specification
		return errs.ErrKindConnectionFailed
	case "57": // operator intervention (query_canceled, admin_shutdown)
		if code == "57014" {
			return errs.ErrKindTimeout
		}
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
