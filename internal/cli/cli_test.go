package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/hdbexport/internal/config"
	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/database/dbtest"
	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/filestore"
)

const selectIDName = "SELECT ID, NAME FROM T"

var baseEnv = []string{
	"HDB_HOST=db.example.com",
	"HDB_PORT=30015",
	"HDB_USER=EXPORTER",
	"HDB_PASSWORD=secret",
	"LOG_LEVEL=disabled",
}

// memStore is an in-memory filestore.Store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	closed  bool
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func (s *memStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) (*filestore.ObjectInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[bucket+"/"+key] = b
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(b)), ContentType: contentType}, nil
}

func (s *memStore) PresignGetURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "http://store/" + bucket + "/" + key, nil
}

type harness struct {
	conn   *dbtest.Conn
	opener *dbtest.Opener
	store  *memStore
	env    []string
	driver database.Driver
	stderr string
}

func newHarness() *harness {
	conn := &dbtest.Conn{Results: map[string]dbtest.Result{
		selectIDName: {
			Columns: []string{"ID", "NAME"},
			Rows:    [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}},
		},
	}}
	return &harness{
		conn:   conn,
		opener: &dbtest.Opener{Conn: conn},
		store:  &memStore{},
		env:    append([]string(nil), baseEnv...),
	}
}

// run executes the root command with args and returns stdout. stderr is
// kept in h.stderr.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	d := deps{
		environ: func() []string { return h.env },
		openerFor: func(driver database.Driver) (database.Opener, error) {
			h.driver = driver
			return h.opener.Open, nil
		},
		storeFor: func(context.Context, config.StoreConfig) (filestore.Store, error) {
			return h.store, nil
		},
	}

	cmd := newRootCmd(d)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	envFile := filepath.Join(t.TempDir(), "missing.env")
	cmd.SetArgs(append([]string{"--env-file", envFile}, args...))

	err := cmd.ExecuteContext(context.Background())
	h.stderr = stderr.String()
	return stdout.String(), err
}

func TestCSV_Stdout(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "csv", selectIDName)
	require.NoError(t, err)

	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", out)
	assert.Equal(t, database.DriverHANA, h.driver)
	assert.Equal(t, 1, h.opener.Opens())
	assert.Equal(t, 1, h.conn.Closes())
}

func TestCSV_QueryFromStdin(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, selectIDName+"\n", "csv", "-")
	require.NoError(t, err)
	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", out)
}

func TestCSV_ToFile(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "out.csv")

	out, err := h.run(t, "", "csv", selectIDName, "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", string(b))
}

func TestCSV_FailedQueryLeavesNoFile(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "out.csv")

	_, err := h.run(t, "", "csv", "SELECT * FROM MISSING", "-o", path)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCSV_Upload(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "EXPORT_ENDPOINT=localhost:9000", "EXPORT_BUCKET=exports")

	out, err := h.run(t, "", "csv", selectIDName, "--upload", "reports/daily.csv")
	require.NoError(t, err)

	assert.Equal(t, "uploaded 2 rows to reports/daily.csv\n", out)
	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", string(h.store.objects["reports/daily.csv"]))
	assert.True(t, h.store.closed)
}

func TestCSV_UploadPresign(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "EXPORT_ENDPOINT=localhost:9000", "EXPORT_BUCKET=exports")

	out, err := h.run(t, "", "csv", selectIDName, "--upload", "/daily.csv", "--presign", "1h")
	require.NoError(t, err)

	assert.Equal(t, "uploaded 2 rows to exports/daily.csv\nhttp://store/exports/daily.csv\n", out)
}

func TestCSV_UploadNeedsEndpoint(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "csv", selectIDName, "--upload", "reports")
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Zero(t, h.opener.Opens())
}

func TestSplitTarget(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	bucket, key := splitTarget("reports/a/b.csv", "fallback", now)
	assert.Equal(t, "reports", bucket)
	assert.Equal(t, "a/b.csv", key)

	bucket, key = splitTarget("s3://reports/x.csv", "fallback", now)
	assert.Equal(t, "reports", bucket)
	assert.Equal(t, "x.csv", key)

	bucket, key = splitTarget("", "fallback", now)
	assert.Equal(t, "fallback", bucket)
	assert.True(t, strings.HasPrefix(key, "exports/2024-05-06/"), key)
	assert.True(t, strings.HasSuffix(key, ".csv"), key)
}

func TestTable_Formats(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "table", selectIDName)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ID":[1,2],"NAME":["Alice","Bob"]}`, out)

	out, err = h.run(t, "", "table", selectIDName, "--format", "yaml")
	require.NoError(t, err)
	assert.Equal(t, "ID:\n    - 1\n    - 2\nNAME:\n    - Alice\n    - Bob\n", out)

	out, err = h.run(t, "", "table", selectIDName, "--format", "arrow")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	assert.Equal(t, 3, h.opener.Opens())
}

func TestTable_UnknownFormat(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "table", selectIDName, "--format", "xml")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Zero(t, h.opener.Opens())
}

func TestPing(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok db.example.com:30015\n", out)
}

func TestMissingSettings(t *testing.T) {
	h := newHarness()
	h.env = []string{"HDB_HOST=db.example.com"}

	_, err := h.run(t, "", "ping")
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "HDB_PASSWORD")
	assert.Zero(t, h.opener.Opens())
}

func TestDriverSelection(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "HDB_DRIVER=postgres")

	_, err := h.run(t, "", "ping")
	require.NoError(t, err)
	assert.Equal(t, database.DriverPostgres, h.driver)
}

func TestEmptyQuery(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "  \n", "csv", "-")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestOpenerFor(t *testing.T) {
	for _, d := range []database.Driver{database.DriverHANA, database.DriverPostgres, database.DriverMySQL} {
		open, err := openerFor(d)
		require.NoError(t, err)
		assert.NotNil(t, open)
	}

	_, err := openerFor("oracle")
	assert.True(t, errs.IsConfiguration(err))
}

func TestCSV_PresignWithoutUpload(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "LOG_LEVEL=warn")

	out, err := h.run(t, "", "csv", selectIDName, "--presign", "1h")
	require.NoError(t, err)
	assert.Equal(t, "ID,NAME\n1,Alice\n2,Bob\n", out)
	assert.Contains(t, h.stderr, "--presign has no effect without --upload")
}

func TestLogFormat(t *testing.T) {
	root := newRootCmd(deps{})
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	csvCmd, _, err := root.Find([]string{"csv"})
	require.NoError(t, err)

	assert.Equal(t, "json", logFormat(serve, ""))
	assert.Equal(t, "console", logFormat(csvCmd, ""))
	assert.Equal(t, "console", logFormat(serve, "console"))
	assert.Equal(t, "json", logFormat(csvCmd, "json"))
}

func TestCSV_ConsoleLogsByDefault(t *testing.T) {
	h := newHarness()
	h.env = append(h.env, "LOG_LEVEL=info")

	_, err := h.run(t, "", "csv", selectIDName)
	require.NoError(t, err)
	assert.Contains(t, h.stderr, "csv export finished")
	assert.False(t, strings.HasPrefix(h.stderr, "{"), "console format expected, got %q", h.stderr)
}
