package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

type recordJSON struct {
	Path     string                 `json:"path"`
	Fields   map[string]value.Value `json:"fields"`
	Metadata map[string]value.Value `json:"metadata"`
	Files    []string               `json:"files"`
}

func newRecordJSON(view shelf.RecordView) recordJSON {
	fields := make(map[string]value.Value, len(view.Fields))
	for _, fv := range view.Fields {
		fields[fv.Name] = fv.Value
	}

	files := view.Files
	if files == nil {
		files = []string{}
	}

	return recordJSON{Path: view.Path, Fields: fields, Metadata: view.Metadata, Files: files}
}

// LsCmd returns the ls command.
func LsCmd(e *Env) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print one JSON object per record")
	limit := fs.Int("limit", 0, "Stop after `n` records (0 = all)")

	return &Command{
		Flags: fs,
		Usage: "ls [key=value]... [flags]",
		Short: "List records",
		Long: `List records in path order. Arguments filter on field or metadata
values; a record matches when every given key has the given value.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if *limit < 0 {
				return fmt.Errorf("--limit must be >= 0, got %d", *limit)
			}

			s, err := e.Load()
			if err != nil {
				return err
			}

			filter, err := parseAssignments(s.Schema(), args)
			if err != nil {
				return err
			}

			w := s.Walker()
			shown := 0

			for view := range w.All(ctx) {
				if !matches(view, filter) {
					continue
				}

				if *asJSON {
					data, err := json.Marshal(newRecordJSON(view))
					if err != nil {
						return err
					}

					o.Println(string(data))
				} else {
					o.Println(view.Path)
				}

				shown++
				if *limit > 0 && shown >= *limit {
					break
				}
			}

			if w.Err() != nil {
				return w.Err()
			}

			warnAll(o, w.Warnings())

			return nil
		},
	}
}

func matches(view shelf.RecordView, filter map[string]value.Value) bool {
	for key, want := range filter {
		got, ok := view.Metadata[key]

		for _, fv := range view.Fields {
			if fv.Name == key {
				got, ok = fv.Value, true
			}
		}

		if !ok || got.Text() != want.Text() {
			return false
		}
	}

	return true
}

func warnAll(o *IO, warnings []shelf.Warning) {
	for _, w := range warnings {
		o.Warn(w.Error(), "fix or remove it, it is left out of results")
	}
}
