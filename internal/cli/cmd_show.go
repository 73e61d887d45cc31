package cli

import (
	"context"
	"encoding/json"

	flag "github.com/spf13/pflag"
)

// ShowCmd returns the show command.
func ShowCmd(e *Env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <field=value>...",
		Short: "Show a record's fields, metadata and files",
		Exec: func(_ context.Context, o *IO, args []string) error {
			s, err := e.Load()
			if err != nil {
				return err
			}

			provided, err := parseAssignments(s.Schema(), args)
			if err != nil {
				return err
			}

			rec, err := s.Open(provided)
			if err != nil {
				return err
			}

			files, err := rec.Files()
			if err != nil {
				return err
			}

			meta, err := json.MarshalIndent(rec.Metadata(), "", "  ")
			if err != nil {
				return err
			}

			o.Println("path=" + rec.RelPath())

			for _, fv := range rec.Fields() {
				o.Println(fv.Name + "=" + fv.Value.Text())
			}

			o.Println()
			o.Println("# metadata")
			o.Println(string(meta))
			o.Println()
			o.Println("# files")

			for _, f := range files {
				o.Println(f)
			}

			return nil
		},
	}
}
