package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/table"
)

func newTableCmd(a *app) *cobra.Command {
	var (
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "table <query|->",
		Short: "Load a query result into a column table and print it",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "json", "yaml", "arrow":
				return nil
			default:
				return errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("unsupported format %q: use json, yaml or arrow", format))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			tbl, err := a.exp.ToTable(cmd.Context(), query)
			if err != nil {
				return err
			}

			w, done, err := createOutput(out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			err = writeTable(w, tbl, format)
			if cerr := done(err != nil); err == nil {
				err = cerr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, yaml, arrow)")

	return cmd
}

func writeTable(w io.Writer, tbl *table.ColumnTable, format string) error {
	var err error
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err = enc.Encode(tbl); err == nil {
			err = enc.Close()
		}
	case "arrow":
		err = tbl.WriteArrowIPC(w)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(tbl)
	}
	if err != nil {
		return errs.Wrap(errs.ErrKindIO, "failed to write "+format+" output", err)
	}
	return nil
}
