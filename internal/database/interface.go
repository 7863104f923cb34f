package database

import "context"

// Conn is a single open database connection. It is owned by exactly one
// WithConnection call and is not safe for concurrent use.
type Conn interface {
	// Query executes sql once and returns its result set.
	Query(ctx context.Context, sql string) (Rows, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Columns returns the column names in result metadata order.
	Columns() ([]string, error)

	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources held by the result set.
	Close()
}

// Opener connects to the database described by cfg. Implementations return
// errs.ErrKindConnectionFailed (or ErrKindTimeout) errors and never retry.
type Opener func(ctx context.Context, cfg *Config) (Conn, error)
