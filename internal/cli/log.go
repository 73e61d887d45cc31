package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// newLogger returns a tinted stderr logger. Color follows cfg.Color; "auto"
// enables it only when errOut is a terminal.
func newLogger(errOut io.Writer, cfg Config) *slog.Logger {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	w := errOut
	tty := false

	if f, ok := errOut.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}

	noColor := cfg.Color == "never" || (cfg.Color != "always" && !tty)

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Drop time when writing to a pipe or file.
			if !tty && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}

			return a
		},
	}))
}
