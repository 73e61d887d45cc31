package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

var errAborted = errors.New("aborted")

// Prompter reads one line of interactive input.
type Prompter interface {
	Prompt(prompt string) (string, error)
	Close() error
}

func newLinerPrompter() Prompter {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)

	return l
}

// CreateCmd returns the create command.
func CreateCmd(e *Env) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	interactive := fs.BoolP("interactive", "i", false, "Prompt for every key not given on the command line")

	return &Command{
		Flags: fs,
		Usage: "create [key=value]... [-i]",
		Short: "Create a record, prints its path",
		Long: `Create a record from field and attribute values and print its path
relative to the shelf root.

Values of string, date and timestamp fields are taken as typed. Other
values are parsed as JSON literals (42, true, [1,2]), falling back to plain
strings. Fields left out take their auto value or default. With -i, every
missing key is prompted for; an empty answer keeps the default.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			s, err := e.Load()
			if err != nil {
				return err
			}

			provided, err := parseAssignments(s.Schema(), args)
			if err != nil {
				return err
			}

			if *interactive {
				err = promptMissing(e.newPrompter(), s.Schema(), provided)
				if err != nil {
					return err
				}
			}

			rec, err := s.Create(provided)
			if err != nil {
				return err
			}

			o.Println(rec.RelPath())

			return nil
		},
	}
}

func (e *Env) newPrompter() Prompter {
	if e.NewPrompter != nil {
		return e.NewPrompter()
	}

	return newLinerPrompter()
}

// promptMissing asks for each field, then each attribute, not in provided.
func promptMissing(p Prompter, schema shelf.Schema, provided map[string]value.Value) error {
	defer func() { _ = p.Close() }()

	var keys []string

	for _, f := range schema.Fields {
		if _, ok := provided[f.Name]; !ok {
			keys = append(keys, f.Name)
		}
	}

	for _, a := range schema.Attributes {
		if _, ok := provided[a.Name]; !ok {
			keys = append(keys, a.Name)
		}
	}

	for _, key := range keys {
		answer, err := p.Prompt(key + ": ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return errAborted
			}

			return fmt.Errorf("reading input: %w", err)
		}

		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}

		provided[key] = parseValue(schema, key, answer)
	}

	return nil
}
