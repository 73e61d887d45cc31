package cli

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(e *Env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			cfg := e.Config

			io.Println("effective_cwd=" + cfg.EffectiveCwd)
			io.Println("root=" + cfg.RootAbs)
			io.Println("log_level=" + cfg.LogLevel)
			io.Println("color=" + cfg.Color)

			io.Println("")
			io.Println("# sources")

			if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
				io.Println("(defaults only)")
			} else {
				if cfg.Sources.Global != "" {
					io.Println("global_config=" + cfg.Sources.Global)
				}

				if cfg.Sources.Project != "" {
					io.Println("project_config=" + cfg.Sources.Project)
				}
			}

			return nil
		},
	}
}

// PrintSchemaCmd returns the print-schema command.
func PrintSchemaCmd(e *Env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-schema", flag.ContinueOnError),
		Usage: "print-schema",
		Short: "Show the shelf's schema file",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			s, err := e.Load()
			if err != nil {
				return err
			}

			data, err := shelf.FormatConfig(s.Schema())
			if err != nil {
				return err
			}

			io.Printf("%s", data)

			return nil
		},
	}
}

// shelfFile mirrors the layout of the schema file for reflection.
type shelfFile struct {
	Version int `json:"version" jsonschema:"enum=1"`
	shelf.Schema
}

// ConfigSchemaCmd returns the config-schema command.
func ConfigSchemaCmd(_ *Env) *Command {
	fs := flag.NewFlagSet("config-schema", flag.ContinueOnError)
	forShelf := fs.Bool("shelf", false, "Describe the shelf schema file ("+shelf.ConfigFileName+") instead of "+ConfigFileName)

	return &Command{
		Flags: fs,
		Usage: "config-schema [--shelf]",
		Short: "Print a JSON Schema for editor completion",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			data, err := configJSONSchema(*forShelf)
			if err != nil {
				return err
			}

			io.Println(string(data))

			return nil
		},
	}
}

func configJSONSchema(forShelf bool) ([]byte, error) {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			// Values are free-form JSON.
			if t == reflect.TypeFor[value.Value]() {
				return &jsonschema.Schema{}
			}

			return nil
		},
	}

	var s *jsonschema.Schema
	if forShelf {
		s = r.Reflect(&shelfFile{})
	} else {
		s = r.Reflect(&Config{})
	}

	return json.MarshalIndent(s, "", "  ")
}
