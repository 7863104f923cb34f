// Package cli implements the hdbexport command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/hdbexport/internal/config"
	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/database/hana"
	"github.com/koustreak/hdbexport/internal/database/mysql"
	"github.com/koustreak/hdbexport/internal/database/postgres"
	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/export"
	"github.com/koustreak/hdbexport/internal/filestore"
	"github.com/koustreak/hdbexport/internal/filestore/minio"
	"github.com/koustreak/hdbexport/internal/logger"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// deps are the pieces the commands resolve at run time. Tests replace them.
type deps struct {
	environ   func() []string
	openerFor func(database.Driver) (database.Opener, error)
	storeFor  func(context.Context, config.StoreConfig) (filestore.Store, error)
}

func defaultDeps() deps {
	return deps{
		environ:   os.Environ,
		openerFor: openerFor,
		storeFor: func(ctx context.Context, c config.StoreConfig) (filestore.Store, error) {
			d, err := minio.New(ctx, filestore.FromConfig(c))
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	}
}

// app is the state shared by all commands once the root pre-run has
// loaded the configuration.
type app struct {
	deps    deps
	envFile string

	cfg *config.Config
	log *logger.Logger
	exp *export.Exporter
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(defaultDeps())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errs.IsConfiguration(err) {
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

func newRootCmd(d deps) *cobra.Command {
	a := &app{deps: d}

	rootCmd := &cobra.Command{
		Use:           "hdbexport",
		Short:         "Run SQL against SAP HANA and export the result",
		Long:          "Runs one SQL statement per invocation on a fresh connection and writes the result as CSV or as a column table.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "dotenv file with HDB_* settings")

	rootCmd.AddCommand(newCSVCmd(a))
	rootCmd.AddCommand(newTableCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newPingCmd(a))

	return rootCmd
}

// setup loads the configuration once and builds the logger and exporter
// every subcommand uses.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Loader{EnvFile: a.envFile, Environ: a.deps.environ}.Load()
	if err != nil {
		return err
	}

	open, err := a.deps.openerFor(database.Driver(cfg.Driver))
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: logFormat(cmd, cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	a.exp = export.New(open, database.FromConfig(cfg), export.WithLogger(a.log))

	a.log.DebugWith("configuration loaded", map[string]any{
		"settings": cfg.Settings.String(),
		"driver":   cfg.Driver,
	})
	return nil
}

// logFormat defaults to readable console logs for the one-shot commands and
// to json for serve, whose logs usually go to a collector.
func logFormat(cmd *cobra.Command, configured string) string {
	switch {
	case configured != "":
		return configured
	case cmd.Name() == "serve":
		return "json"
	default:
		return "console"
	}
}

// openerFor returns the connect function for driver.
func openerFor(driver database.Driver) (database.Opener, error) {
	switch driver {
	case database.DriverHANA:
		return hana.Open, nil
	case database.DriverPostgres:
		return postgres.Open, nil
	case database.DriverMySQL:
		return mysql.Open, nil
	default:
		return nil, errs.New(errs.ErrKindConfiguration, fmt.Sprintf("unsupported driver %q", driver))
	}
}

// readQuery resolves the query argument; "-" reads it from in.
func readQuery(arg string, in io.Reader) (string, error) {
	query := arg
	if arg == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindIO, "failed to read query from stdin", err)
		}
		query = string(b)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "query is empty")
	}
	return query, nil
}

// createOutput opens path for writing, or returns w when path is empty or
// "-". The returned cleanup closes the file and removes it when failed is
// true.
func createOutput(path string, w io.Writer) (io.Writer, func(failed bool) error, error) {
	if path == "" || path == "-" {
		return w, func(bool) error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindIO, "failed to create "+path, err)
	}
	return f, func(failed bool) error {
		cerr := f.Close()
		if failed {
			_ = os.Remove(path)
			return nil
		}
		if cerr != nil {
			return errs.Wrap(errs.ErrKindIO, "failed to close "+path, cerr)
		}
		return nil
	}, nil
}
