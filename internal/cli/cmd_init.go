package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

var (
	errNoFields       = errors.New("at least one --field is required")
	errUnknownType    = errors.New("unknown field type (must be string|int|date|timestamp|uuid)")
	errEmptyFieldSpec = errors.New("empty field spec")
)

// InitCmd returns the init command.
func InitCmd(e *Env) *Command {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fields := fs.StringArrayP("field", "f", nil, "Field `name[:type][=default]`, in path order (repeatable)")
	attrs := fs.StringArrayP("attr", "a", nil, "Attribute `name[!][=default]`, ! marks required (repeatable)")
	metadataName := fs.String("metadata-name", shelf.DefaultMetadataName, "Metadata file name, without extension")
	dataName := fs.String("data-name", shelf.DefaultDataName, "Default data attachment name, without extension")
	attachments := fs.String("attachments", string(shelf.AttachOverwrite), "Re-attach policy: overwrite|reject")
	onReadError := fs.String("on-read-error", string(shelf.ReadErrorSkip), "Unreadable attachment policy: skip|fail")

	return &Command{
		Flags: fs,
		Usage: "init -f <field>... [flags]",
		Short: "Define a shelf in the root directory",
		Long: `Define a shelf in the root directory by writing its schema file.

Field types are string (default), int, date, timestamp and uuid. Date and
timestamp fields default to the current local time, uuid fields to a fresh
UUIDv7. Defaults are parsed as JSON literals, falling back to strings.

Running init again with the same schema is a no-op; a different schema
is an error.

Example:
  shelf init -f date:date -f experiment=baseline -f seed:int -a owner -a host!`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}

			schema := shelf.Schema{
				MetaName:    *metadataName,
				DataName:    *dataName,
				Attachments: shelf.AttachPolicy(*attachments),
				OnReadError: shelf.ReadErrorPolicy(*onReadError),
			}

			if len(*fields) == 0 {
				return errNoFields
			}

			for _, spec := range *fields {
				f, err := parseFieldSpec(spec)
				if err != nil {
					return fmt.Errorf("--field %q: %w", spec, err)
				}

				schema.Fields = append(schema.Fields, f)
			}

			for _, spec := range *attrs {
				a, err := parseAttrSpec(spec)
				if err != nil {
					return fmt.Errorf("--attr %q: %w", spec, err)
				}

				schema.Attributes = append(schema.Attributes, a)
			}

			s, err := shelf.Define(e.Config.RootAbs, schema, e.Options())
			if err != nil {
				return err
			}

			o.Println(s.Root())

			return nil
		},
	}
}

// parseFieldSpec parses name[:type][=default].
func parseFieldSpec(spec string) (shelf.Field, error) {
	head, def, hasDefault := strings.Cut(spec, "=")
	name, typ, _ := strings.Cut(head, ":")

	if name == "" {
		return shelf.Field{}, errEmptyFieldSpec
	}

	var f shelf.Field

	switch typ {
	case "", "string":
		f = shelf.StringField(name)
	case "int":
		f = shelf.IntField(name)
	case "date":
		f = shelf.DateField(name)
	case "timestamp":
		f = shelf.TimestampField(name)
	case "uuid":
		f = shelf.UUIDField(name)
	default:
		return shelf.Field{}, fmt.Errorf("%w: %q", errUnknownType, typ)
	}

	if hasDefault {
		// An explicit default replaces the auto rule.
		f.Auto = shelf.AutoNone
		f = f.WithDefault(fieldLiteral(f, def))
	}

	return f, nil
}

// parseAttrSpec parses name[!][=default].
func parseAttrSpec(spec string) (shelf.Attribute, error) {
	name, def, hasDefault := strings.Cut(spec, "=")

	required := strings.HasSuffix(name, "!")
	name = strings.TrimSuffix(name, "!")

	if name == "" {
		return shelf.Attribute{}, errEmptyFieldSpec
	}

	a := shelf.Attribute{Name: name, Required: required}

	if hasDefault {
		v := value.ParseLiteral(def)
		a.Default = &v
	}

	return a, nil
}
