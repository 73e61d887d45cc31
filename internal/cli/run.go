package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shelf/pkg/format"
	"github.com/calvinalkan/shelf/pkg/fs"
	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

var (
	errAssignmentFormat = errors.New("expected key=value")
	errDuplicateKey     = errors.New("key given twice")
)

// Env is what every command runs against: resolved config plus the
// shared logger, filesystem and format registry.
type Env struct {
	Config  Config
	Logger  *slog.Logger
	In      io.Reader
	FS      fs.FS
	Formats *format.Registry

	// NewPrompter opens interactive input for create -i.
	// Defaults to a line editor on the terminal.
	NewPrompter func() Prompter
}

// Options returns shelf options wired to the CLI's logger and filesystem.
func (e *Env) Options() shelf.Options {
	return shelf.Options{
		Logger:  e.Logger,
		FS:      e.FS,
		Formats: e.Formats,
	}
}

// Load opens the configured shelf.
func (e *Env) Load() (*shelf.Shelf, error) {
	s, err := shelf.Load(e.Config.RootAbs, e.Options())
	if errors.Is(err, shelf.ErrNotShelf) {
		return nil, fmt.Errorf("%w (run 'shelf init' first)", err)
	}

	return s, err
}

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. The first signal cancels the running command's
// context.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("shelf", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagRoot := globalFlags.StringP("root", "r", "", "Override shelf root `dir`")
	flagVerbose := globalFlags.BoolP("verbose", "v", false, "Log debug output to stderr")

	if len(args) < 2 {
		printUsage(out, globalFlags)

		return 0
	}

	err := globalFlags.Parse(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globalFlags)

		return 1
	}

	if globalFlags.Changed("root") && *flagRoot == "" {
		fprintln(errOut, "error:", errRootEmpty)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	overrides := Config{Root: *flagRoot}
	if *flagVerbose {
		overrides.LogLevel = "debug"
	}

	cfg, err := LoadConfig(workDir, *flagConfig, overrides, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	e := &Env{
		Config:  cfg,
		Logger:  newLogger(errOut, cfg),
		In:      in,
		FS:      fs.NewReal(),
		Formats: format.Default(),
	}

	commands := allCommands(e)

	rest := globalFlags.Args()
	if *flagHelp || len(rest) == 0 {
		printUsage(out, globalFlags, commands...)

		return 0
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == rest[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, globalFlags, commands...)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

func allCommands(e *Env) []*Command {
	return []*Command{
		InitCmd(e),
		CreateCmd(e),
		AttachCmd(e),
		LsCmd(e),
		ShowCmd(e),
		AggregateCmd(e),
		PrintSchemaCmd(e),
		PrintConfigCmd(e),
		ConfigSchemaCmd(e),
	}
}

// parseAssignments turns key=value arguments into values, read with
// [parseValue].
func parseAssignments(schema shelf.Schema, args []string) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(args))

	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", errAssignmentFormat, arg)
		}

		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %s", errDuplicateKey, key)
		}

		out[key] = parseValue(schema, key, raw)
	}

	return out, nil
}

// parseValue reads raw as the value for key. Values of string, date and
// timestamp fields are taken verbatim, so "1.10" stays "1.10". Anything
// else is read as a JSON literal when it is one (42, true, null, [1,2])
// and as a plain string otherwise.
func parseValue(schema shelf.Schema, key, raw string) value.Value {
	if f, ok := schema.Field(key); ok {
		return fieldLiteral(f, raw)
	}

	return value.ParseLiteral(raw)
}

func fieldLiteral(f shelf.Field, raw string) value.Value {
	if f.Type == shelf.TypeInt {
		return value.ParseLiteral(raw)
	}

	return value.String(raw)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globalFlags *flag.FlagSet, commands ...*Command) {
	fprintln(w, `shelf - filesystem-backed record store

Usage: shelf [global flags] <command> [args]`)

	if globalFlags != nil {
		var buf strings.Builder

		globalFlags.SetOutput(&buf)
		globalFlags.PrintDefaults()
		globalFlags.SetOutput(&strings.Builder{})

		fprintln(w)
		fprintln(w, "Global flags:")
		_, _ = io.WriteString(w, buf.String())
	}

	if len(commands) > 0 {
		fprintln(w)
		fprintln(w, "Commands:")

		for _, c := range commands {
			fprintln(w, c.HelpLine())
		}
	}
}
