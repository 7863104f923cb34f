package hana

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/errs"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(&database.Config{Host: "db.example.com", Port: 30015, User: "U", Password: "p@ss/word"})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "hdb", u.Scheme)
	assert.Equal(t, "db.example.com:30015", u.Host)
	assert.Equal(t, "U", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Empty(t, u.RawQuery)
}

func TestBuildDSN_Tenant(t *testing.T) {
	dsn := buildDSN(&database.Config{Host: "h", Port: 30013, User: "U", Password: "P", Database: "HXE"})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "HXE", u.Query().Get("databaseName"))
}

func TestClassifyHDBCode(t *testing.T) {
	assert.Equal(t, errs.ErrKindConnectionFailed, classifyHDBCode(errAuthFailed))
	assert.Equal(t, errs.ErrKindConnectionFailed, classifyHDBCode(errDBNotFound))
	assert.Equal(t, errs.ErrKindQueryFailed, classifyHDBCode(257)) // sql syntax error
	assert.Equal(t, errs.ErrKindQueryFailed, classifyHDBCode(259)) // invalid table name
}

func TestNewConnector_Timeout(t *testing.T) {
	c, err := newConnector(&database.Config{Host: "h", Port: 30015, User: "U", Password: "P", ConnectTimeout: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, c.Timeout())
	assert.Equal(t, "h:30015", c.Host())

	c, err = newConnector(&database.Config{Host: "h", Port: 30015, User: "U", Password: "P", Database: "HXE"})
	require.NoError(t, err)
	assert.Equal(t, "HXE", c.DatabaseName())
	assert.Positive(t, c.Timeout(), "driver default applies without ConnectTimeout")
}

func TestMapError_Plain(t *testing.T) {
	assert.Equal(t, errs.ErrKindTimeout, mapError(context.DeadlineExceeded, "query failed").Kind)

	refused := errors.New("dial tcp 10.0.0.1:30015: connect: connection refused")
	got := mapError(refused, "connect failed")
	assert.Equal(t, errs.ErrKindConnectionFailed, got.Kind)
	assert.ErrorIs(t, got, refused)
}

func TestOpen_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	cfg := &database.Config{Driver: database.DriverHANA, Host: "127.0.0.1", Port: addr.Port, User: "U", Password: "P", ConnectTimeout: time.Second}
	err = database.WithConnection(context.Background(), Open, cfg, func(database.Conn) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestOpen_HandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		// Accept and never answer the handshake.
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := &database.Config{Driver: database.DriverHANA, Host: "127.0.0.1", Port: addr.Port, User: "U", Password: "P", ConnectTimeout: 200 * time.Millisecond}

	start := time.Now()
	err = database.WithConnection(context.Background(), Open, cfg, func(database.Conn) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
