package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	errFileRequired = errors.New("file is required")
	errNameRequired = errors.New("--name is required when reading stdin")
	errFromRequired = errors.New("--from is required with --convert when reading stdin")
)

// AttachCmd returns the attach command.
func AttachCmd(e *Env) *Command {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	name := fs.StringP("name", "n", "", "Attachment name [default: base name of file]")
	convert := fs.Bool("convert", false, "Parse file as a table and re-encode it for --name's extension")
	from := fs.String("from", "", "Source format for --convert, e.g. csv [default: extension of file]")

	return &Command{
		Flags: fs,
		Usage: "attach <file|-> <field=value>... [flags]",
		Short: "Attach a file to an existing record",
		Long: `Copy a file into a record directory. The record is identified by its
field values; fields with defaults may be left out. Use - to read stdin.

With --convert, the file is read with the codec for its own extension, or
for --from if given, and written with the codec for the attachment name:
  shelf attach scores.tsv --convert -n scores.csv date=2024-05-01 run=r1
  cat scores.tsv | shelf attach - --convert --from tsv -n scores.csv run=r1`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errFileRequired
			}

			src, keys := args[0], args[1:]

			target := *name
			if target == "" {
				if src == "-" {
					return errNameRequired
				}

				target = filepath.Base(src)
			}

			// The source codec is looked up by extension.
			source := src
			if *from != "" {
				source = "stdin." + strings.TrimPrefix(*from, ".")
			} else if *convert && src == "-" {
				return errFromRequired
			}

			s, err := e.Load()
			if err != nil {
				return err
			}

			provided, err := parseAssignments(s.Schema(), keys)
			if err != nil {
				return err
			}

			rec, err := s.Open(provided)
			if err != nil {
				return err
			}

			var r io.Reader = e.In

			if src != "-" {
				path := src
				if !filepath.IsAbs(path) {
					path = filepath.Join(e.Config.EffectiveCwd, path)
				}

				f, err := e.FS.Open(path)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()

				r = f
			}

			if *convert {
				t, err := e.Formats.Read(source, r)
				if err != nil {
					return fmt.Errorf("read %s: %w", src, err)
				}

				err = rec.Attach(t, target)
				if err != nil {
					return err
				}
			} else {
				err = rec.AttachReader(r, target)
				if err != nil {
					return err
				}
			}

			o.Println(filepath.Join(rec.RelPath(), target))

			return nil
		},
	}
}
