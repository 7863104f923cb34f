package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/export"
)

func newCSVCmd(a *app) *cobra.Command {
	var (
		out     string
		upload  string
		presign time.Duration
	)

	cmd := &cobra.Command{
		Use:   "csv <query|->",
		Short: "Export a query result as CSV",
		Long: `Runs the query once and writes the result as CSV with a header row.
Use "-" to read the query from stdin. With --upload the CSV is streamed to the
configured object store instead of a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("upload") {
				return a.uploadCSV(cmd, query, upload, presign)
			}
			if presign > 0 {
				a.log.Warn("--presign has no effect without --upload")
			}

			w, done, err := createOutput(out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.exp.ExportCSV(cmd.Context(), query, w)
			if cerr := done(err != nil); err == nil {
				err = cerr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&upload, "upload", "", "upload to bucket[/key] in the object store; an empty bucket uses EXPORT_BUCKET")
	cmd.Flags().DurationVar(&presign, "presign", 0, "after --upload, print a download URL valid for this long")

	return cmd
}

func (a *app) uploadCSV(cmd *cobra.Command, query, target string, presign time.Duration) error {
	if !a.cfg.Store.Enabled() {
		return errs.New(errs.ErrKindConfiguration, "--upload needs EXPORT_ENDPOINT")
	}
	bucket, key := splitTarget(target, a.cfg.Store.Bucket, time.Now())
	if bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "no bucket given and EXPORT_BUCKET is not set")
	}

	store, err := a.deps.storeFor(cmd.Context(), a.cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, info, err := a.exp.ExportCSVToStore(cmd.Context(), query, store, bucket, key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d rows to %s/%s\n", stats.Rows, info.Bucket, info.Key)

	if presign > 0 {
		url, err := store.PresignGetURL(cmd.Context(), info.Bucket, info.Key, presign)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), url)
	}
	return nil
}

// splitTarget parses bucket[/key]. A missing bucket falls back to
// defaultBucket and a missing key to export.DefaultObjectKey.
func splitTarget(target, defaultBucket string, now time.Time) (bucket, key string) {
	bucket, key, _ = strings.Cut(strings.TrimPrefix(target, "s3://"), "/")
	if bucket == "" {
		bucket = defaultBucket
	}
	if key == "" {
		key = export.DefaultObjectKey(now)
	}
	return bucket, key
}
