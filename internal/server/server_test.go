package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/database/dbtest"
	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/export"
	"github.com/koustreak/hdbexport/internal/logger"
)

const selectIDName = "SELECT ID, NAME FROM T"

func newTestServer(t *testing.T, conn *dbtest.Conn, openErr error) *httptest.Server {
	t.Helper()
	opener := &dbtest.Opener{Conn: conn, OpenErr: openErr}
	cfg := &database.Config{Driver: database.DriverHANA, Host: "db.example.com", Port: 30015, User: "U", Password: "P"}
	s := New(export.New(opener.Open, cfg), logger.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func aliceBob() *dbtest.Conn {
	return &dbtest.Conn{Results: map[string]dbtest.Result{
		selectIDName: {
			Columns: []string{"ID", "NAME"},
			Rows:    [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}},
		},
	}}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &dbtest.Conn{}, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestHealthz_ConnectFailure(t *testing.T) {
	srv := newTestServer(t, nil, errors.New("connection refused"))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "connection_failed", body.Kind)
	assert.NotEmpty(t, body.RequestID)
}

func TestQueryCSV(t *testing.T) {
	srv := newTestServer(t, aliceBob(), nil)

	resp := post(t, srv.URL+"/v1/query.csv", selectIDName)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contentTypeCSV, resp.Header.Get("Content-Type"))
	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", readBody(t, resp))
}

func TestQueryCSV_QueryFailure(t *testing.T) {
	srv := newTestServer(t, &dbtest.Conn{QueryErr: errors.New("syntax error")}, nil)

	resp := post(t, srv.URL+"/v1/query.csv", "SELECT * FORM T")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, contentTypeJSON, resp.Header.Get("Content-Type"))
	assert.Contains(t, readBody(t, resp), "query_failed")
}

func TestQueryTable_Formats(t *testing.T) {
	srv := newTestServer(t, aliceBob(), nil)

	t.Run("json by default", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/query", selectIDName)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"ID":[1,2],"NAME":["Alice","Bob"]}`, readBody(t, resp))
	})

	t.Run("yaml", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/query?format=yaml", selectIDName)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, contentTypeYAML, resp.Header.Get("Content-Type"))
		assert.Equal(t, "ID:\n    - 1\n    - 2\nNAME:\n    - Alice\n    - Bob\n", readBody(t, resp))
	})

	t.Run("arrow", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/query?format=arrow", selectIDName)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, contentTypeArrow, resp.Header.Get("Content-Type"))

		rdr, err := ipc.NewReader(resp.Body)
		require.NoError(t, err)
		defer rdr.Release()

		assert.Equal(t, "ID", rdr.Schema().Field(0).Name)
		assert.Equal(t, "NAME", rdr.Schema().Field(1).Name)
		require.True(t, rdr.Next())
		assert.Equal(t, int64(2), rdr.Record().NumRows())
	})

	t.Run("unknown format", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/query?format=xml", selectIDName)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "invalid_input")
	})
}

func TestQuery_EmptyBody(t *testing.T) {
	srv := newTestServer(t, aliceBob(), nil)

	resp := post(t, srv.URL+"/v1/query", "   \n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "query text is empty")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrKindQueryFailed, "q"), http.StatusBadRequest},
		{errs.New(errs.ErrKindInvalidInput, "i"), http.StatusBadRequest},
		{errs.New(errs.ErrKindConnectionFailed, "c"), http.StatusBadGateway},
		{errs.New(errs.ErrKindTimeout, "t"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindConfiguration, "cfg"), http.StatusInternalServerError},
		{errs.New(errs.ErrKindNotFound, "nf"), http.StatusNotFound},
		{errs.New(errs.ErrKindPermissionDenied, "pd"), http.StatusForbidden},
		{errors.New("plain"), http.StatusInternalServerError},
		{errs.Chain(errs.New(errs.ErrKindQueryFailed, "q"), errs.New(errs.ErrKindConnectionFailed, "close")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestPublicMessage_HidesSecondary(t *testing.T) {
	err := errs.Chain(errs.New(errs.ErrKindQueryFailed, "bad column"), errs.New(errs.ErrKindConnectionFailed, "close failed"))
	assert.Equal(t, "[query_failed] bad column", publicMessage(err))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var logs bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &logs})
	s := New(export.New((&dbtest.Opener{Conn: &dbtest.Conn{}}).Open, &database.Config{}), log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, logs.String(), "server listening on "+addr)
	assert.Contains(t, logs.String(), "shutting down server")
}
