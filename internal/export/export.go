// Package export runs a query on a scoped connection and materialises the
// result either as CSV or as a table.ColumnTable.
//
// Each call opens its own connection, executes the query exactly once and
// closes the connection before returning. Nothing is cached between calls.
package export

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/koustreak/hdbexport/internal/database"
	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/logger"
	"github.com/koustreak/hdbexport/internal/table"
)

// defaultFlushEvery is how many CSV records are buffered between flushes.
const defaultFlushEvery = 512

// Stats summarises one export.
type Stats struct {
	Columns []string
	Rows    int
}

// Exporter executes queries through a database.Opener.
type Exporter struct {
	open       database.Opener
	cfg        *database.Config
	log        *logger.Logger
	flushEvery int
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(e *Exporter) { e.log = l }
}

// WithFlushEvery sets how many CSV records are buffered between flushes.
func WithFlushEvery(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.flushEvery = n
		}
	}
}

// New returns an Exporter that connects with open using cfg.
func New(open database.Opener, cfg *database.Config, opts ...Option) *Exporter {
	e := &Exporter{
		open:       open,
		cfg:        cfg,
		log:        logger.Nop(),
		flushEvery: defaultFlushEvery,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportCSV writes the result of query to w: one header record with the
// column names in result order, then one record per row. Records are
// comma-separated, quoted per RFC 4180 where needed, and end in "\n".
//
// Nothing is written when the query fails before the first row is read.
// Sink failures are errs.ErrKindIO.
func (e *Exporter) ExportCSV(ctx context.Context, query string, w io.Writer) (Stats, error) {
	ctx, log := e.logContext(ctx)
	var stats Stats
	err := e.run(ctx, query, func(rows database.Rows, cols []string) error {
		stats.Columns = cols
		cw := csv.NewWriter(w)
		record := make([]string, len(cols))

		headerDone := false
		writeHeader := func() error {
			headerDone = true
			if err := cw.Write(cols); err != nil {
				return errs.Wrap(errs.ErrKindIO, "failed to write csv header", err)
			}
			return nil
		}

		for rows.Next() {
			if !headerDone {
				if err := writeHeader(); err != nil {
					return err
				}
			}
			values, err := database.ScanRow(rows, len(cols))
			if err != nil {
				return err
			}
			for i, v := range values {
				record[i] = FormatValue(v)
			}
			if err := cw.Write(record); err != nil {
				return errs.Wrap(errs.ErrKindIO, "failed to write csv record", err)
			}
			stats.Rows++
			if stats.Rows%e.flushEvery == 0 {
				if err := flush(cw); err != nil {
					return err
				}
			}
		}
		if err := rows.Err(); err != nil {
			return asQueryError(err, "error during row iteration")
		}

		if !headerDone {
			if err := writeHeader(); err != nil {
				return err
			}
		}
		return flush(cw)
	})
	if err != nil {
		return stats, err
	}

	log.InfoWith("csv export finished", map[string]any{"rows": stats.Rows, "columns": len(stats.Columns)})
	return stats, nil
}

// ToTable reads the whole result of query into memory.
func (e *Exporter) ToTable(ctx context.Context, query string) (*table.ColumnTable, error) {
	ctx, log := e.logContext(ctx)
	var tbl *table.ColumnTable
	err := e.run(ctx, query, func(rows database.Rows, cols []string) error {
		tbl = table.New(cols)
		for rows.Next() {
			values, err := database.ScanRow(rows, len(cols))
			if err != nil {
				return err
			}
			if err := tbl.AppendRow(values); err != nil {
				return errs.Wrap(errs.ErrKindQueryFailed, "row does not match result columns", err)
			}
		}
		if err := rows.Err(); err != nil {
			return asQueryError(err, "error during row iteration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.InfoWith("table built", map[string]any{"rows": tbl.Len(), "columns": len(tbl.Columns())})
	return tbl, nil
}

// Ping opens a connection, pings it and closes it.
func (e *Exporter) Ping(ctx context.Context) error {
	ctx, _ = e.logContext(ctx)
	return database.WithConnection(ctx, e.open, e.cfg, func(conn database.Conn) error {
		return conn.Ping(ctx)
	})
}

// run executes query once on a scoped connection and hands the open result
// set and its column names to consume.
func (e *Exporter) run(ctx context.Context, query string, consume func(database.Rows, []string) error) error {
	log := logger.FromContext(ctx)
	return database.WithConnection(ctx, e.open, e.cfg, func(conn database.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			log.ErrorWith("query failed", err, nil)
			return asQueryError(err, "query failed")
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return asQueryError(err, "failed to read column names")
		}
		log.DebugWith("query executed", map[string]any{"columns": len(cols)})

		return consume(rows, cols)
	})
}

// logContext keeps a logger the caller already put in ctx, such as the
// request logger of the HTTP server, and falls back to e.log.
func (e *Exporter) logContext(ctx context.Context) (context.Context, *logger.Logger) {
	ctx = e.log.EnsureContext(ctx)
	return ctx, logger.FromContext(ctx)
}

func flush(cw *csv.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errs.Wrap(errs.ErrKindIO, "failed to flush csv output", err)
	}
	return nil
}

// asQueryError keeps driver-classified errors and marks the rest as query
// failures.
func asQueryError(err error, msg string) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
