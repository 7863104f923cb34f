// Package dbtest provides in-memory database.Conn and database.Rows fakes
// for tests of code built on the database package.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/errs"
)

// Result is a canned result set.
type Result struct {
	Columns []string
	Rows    [][]any

	// IterErr, when set, is reported by Err() after FailAfter rows.
	IterErr   error
	FailAfter int
}

// Conn is a scripted database.Conn. Queries not found in Results fail with
// a query error.
type Conn struct {
	Results  map[string]Result
	QueryErr error
	PingErr  error
	CloseErr error

	mu      sync.Mutex
	queries []string
	closes  int
}

// Query records sql and returns its canned result.
func (c *Conn) Query(_ context.Context, sql string) (database.Rows, error) {
	c.mu.Lock()
	c.queries = append(c.queries, sql)
	c.mu.Unlock()

	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	res, ok := c.Results[sql]
	if !ok {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "query failed",
			fmt.Errorf("no canned result for %q", sql))
	}
	return &Rows{result: res, pos: -1}, nil
}

func (c *Conn) Ping(context.Context) error { return c.PingErr }

func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.CloseErr
}

// Queries returns every statement executed so far.
func (c *Conn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Closes returns how many times Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Opener hands out conn on every call and counts the calls. A non-nil
// OpenErr is returned instead.
type Opener struct {
	Conn    *Conn
	OpenErr error

	mu    sync.Mutex
	opens int
}

// Open satisfies database.Opener.
func (o *Opener) Open(_ context.Context, _ *database.Config) (database.Conn, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	return o.Conn, nil
}

// Opens returns how many times Open was called.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Rows iterates a Result.
type Rows struct {
	result Result
	pos    int
	closed bool
}

func (r *Rows) Columns() ([]string, error) { return r.result.Columns, nil }

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	if r.result.IterErr != nil && r.pos+1 >= r.result.FailAfter {
		return false
	}
	r.pos++
	return r.pos < len(r.result.Rows)
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.result.Rows) {
		return errors.New("scan called without a current row")
	}
	row := r.result.Rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destinations, got %d", len(row), len(dest))
	}
	for i, v := range row {
		p, ok := dest[i].(*any)
		if !ok {
			return fmt.Errorf("destination %d is %T, want *any", i, dest[i])
		}
		*p = v
	}
	return nil
}

func (r *Rows) Err() error {
	if r.result.IterErr != nil && r.pos+1 >= r.result.FailAfter {
		return r.result.IterErr
	}
	return nil
}

func (r *Rows) Close() { r.closed = true }
