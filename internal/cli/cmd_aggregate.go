package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/shelf"
)

var errNoSuchTable = errors.New("no such table")

// AggregateCmd returns the aggregate command.
func AggregateCmd(e *Env) *Command {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	tableName := fs.StringP("table", "t", shelf.MetadataTable, "Table to print")
	outFormat := fs.StringP("format", "F", "csv", "Output format, any registered extension (csv, tsv, json, jsonl, yaml)")
	outDir := fs.StringP("out", "o", "", "Write every table to `dir` instead of printing one")
	list := fs.BoolP("list", "l", false, "List tables and opaque files instead of printing")

	return &Command{
		Flags: fs,
		Usage: "aggregate [flags]",
		Short: "Merge metadata and same-named attachments across all records",
		Long: `Walk the whole shelf and merge it into tables:

  metadata   one row per record: fields, attributes, opaque attachments
  <stem>     every tabular attachment with that name, rows prefixed with
             the record's field values

Columns that differ between records are unioned and missing cells are
empty. Records that cannot be read are skipped with a warning.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			ext := "." + *outFormat
			if !e.Formats.IsTabular(ext) {
				return fmt.Errorf("--format: unknown format %q (have %v)", *outFormat, e.Formats.Extensions())
			}

			s, err := e.Load()
			if err != nil {
				return err
			}

			agg, err := s.Aggregate(ctx)
			if err != nil {
				return err
			}

			warnAll(o, agg.Warnings)

			names := slices.Sorted(maps.Keys(agg.Tables))

			switch {
			case *list:
				for _, name := range names {
					t := agg.Tables[name]
					o.Printf("%s\t%d rows\t%d columns\n", name, t.Len(), t.Width())
				}

				for _, f := range agg.Files {
					o.Printf("%s\tfile\n", f)
				}

				return nil

			case *outDir != "":
				dir := *outDir
				if !filepath.IsAbs(dir) {
					dir = filepath.Join(e.Config.EffectiveCwd, dir)
				}

				err := e.FS.MkdirAll(dir, 0o755)
				if err != nil {
					return err
				}

				for _, name := range names {
					path := filepath.Join(dir, name+ext)

					var buf bytes.Buffer

					err := e.Formats.Write(path, &buf, agg.Tables[name])
					if err != nil {
						return fmt.Errorf("encode %s: %w", name, err)
					}

					err = e.FS.WriteStream(path, &buf, 0o644)
					if err != nil {
						return err
					}

					o.Println(path)
				}

				return nil

			default:
				t, ok := agg.Tables[*tableName]
				if !ok {
					return fmt.Errorf("%w: %q (have %v)", errNoSuchTable, *tableName, names)
				}

				return e.Formats.Write(ext, o.Out(), t)
			}
		},
	}
}
