package database

import (
	"context"
	"fmt"

	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/logger"
)

// WithConnection opens one connection with open, hands it to fn and closes
// it before returning, on every exit path.
//
// Error precedence:
//   - open fails: the connection error is returned and fn never runs.
//   - fn fails and close fails: fn's error is primary and the close failure
//     is chained onto it (see errs.Secondary).
//   - only close fails: the close failure is returned.
//   - fn panics: the connection is closed and the panic resumes.
//
// The Conn passed to fn refuses further use once WithConnection returns.
func WithConnection(ctx context.Context, open Opener, cfg *Config, fn func(Conn) error) error {
	log := logger.FromContext(ctx).With().
		Str("driver", string(cfg.Driver)).
		Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
		Logger()

	raw, err := open(ctx, cfg)
	if err != nil {
		log.ErrorWith("connect failed", err, nil)
		if errs.IsConnectionFailed(err) {
			return err
		}
		// Driver kinds such as timeout stay reachable through the cause.
		return errs.Wrap(errs.ErrKindConnectionFailed, "connect failed", err)
	}
	log.Debug("connection opened")

	conn := &scopedConn{conn: raw}
	done := false
	defer func() {
		if done {
			return
		}
		// fn panicked; release the connection before the panic continues.
		if cerr := conn.release(ctx); cerr != nil {
			log.ErrorWith("close after panic failed", cerr, nil)
		}
	}()

	bodyErr := fn(conn)
	done = true

	closeErr := conn.release(ctx)
	if closeErr != nil {
		log.ErrorWith("close failed", closeErr, nil)
	} else {
		log.Debug("connection closed")
	}
	return errs.Chain(bodyErr, closeErr)
}

// scopedConn guards a Conn so it cannot be used, or closed twice, after its
// scope has ended.
type scopedConn struct {
	conn   Conn
	closed bool
}

var errScopeEnded = errs.New(errs.ErrKindConnectionFailed, "connection used outside its scope")

func (c *scopedConn) Query(ctx context.Context, sql string) (Rows, error) {
	if c.closed {
		return nil, errScopeEnded
	}
	return c.conn.Query(ctx, sql)
}

func (c *scopedConn) Ping(ctx context.Context) error {
	if c.closed {
		return errScopeEnded
	}
	return c.conn.Ping(ctx)
}

// Close is owned by the scope; calls from fn are ignored.
func (c *scopedConn) Close(context.Context) error {
	return nil
}

func (c *scopedConn) release(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	// Close even when the caller's context is already cancelled.
	err := c.conn.Close(context.WithoutCancel(ctx))
	if err == nil || errs.IsConnectionFailed(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, "close failed", err)
}
