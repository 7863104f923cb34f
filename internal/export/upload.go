package export

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/filestore"
)

const csvContentType = "text/csv"

// DefaultObjectKey names an upload when the caller gives no key:
// exports/2006-01-02/<uuid>.csv.
func DefaultObjectKey(now time.Time) string {
	return path.Join("exports", now.UTC().Format("2006-01-02"), uuid.NewString()+".csv")
}

// ExportCSVToStore streams the CSV export of query into bucket/key without
// buffering the whole file. The export error, if any, takes precedence over
// the upload error it causes.
func (e *Exporter) ExportCSVToStore(ctx context.Context, query string, store filestore.Store, bucket, key string) (Stats, *filestore.ObjectInfo, error) {
	if bucket == "" || key == "" {
		return Stats{}, nil, errs.New(errs.ErrKindInvalidInput, "bucket and key are required for upload")
	}

	ctx, log := e.logContext(ctx)
	pr, pw := io.Pipe()

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := e.ExportCSV(ctx, query, pw)
		// A nil err closes the pipe normally and ends the upload.
		pw.CloseWithError(err)
		done <- result{stats: stats, err: err}
	}()

	info, putErr := store.PutObject(ctx, bucket, key, pr, -1, csvContentType)
	if putErr != nil {
		// Unblock the exporter if the upload stopped reading early.
		pr.CloseWithError(errs.Wrap(errs.ErrKindIO, "upload aborted", putErr))
	} else {
		_ = pr.Close()
	}

	res := <-done
	switch {
	case putErr != nil && (res.err == nil || errs.IsIO(res.err)):
		// The exporter only saw the closed pipe; the upload error is the cause.
		return res.stats, nil, putErr
	case res.err != nil:
		return res.stats, nil, res.err
	}

	log.InfoWith("csv uploaded", map[string]any{"bucket": info.Bucket, "key": info.Key, "rows": res.stats.Rows})
	return res.stats, info, nil
}
