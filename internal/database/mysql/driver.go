// Package mysql opens single MySQL connections through database/sql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/errs"
)

// Open connects to MySQL. It satisfies database.Opener.
func Open(ctx context.Context, cfg *database.Config) (database.Conn, error) {
	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid mysql config", err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := database.NewSQLConn(ctx, db, mapError)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// buildDSN constructs the MySQL DSN string.
func buildDSN(cfg *database.Config) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Timeout = cfg.ConnectTimeout
	return c.FormatDSN()
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1049: // access denied, bad password, unknown database
		return errs.ErrKindConnectionFailed
	case 1040, 1203: // too many connections
		return errs.ErrKindConnectionFailed
	case 3024: // max_execution_time exceeded
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
