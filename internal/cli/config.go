package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

var (
	errConfigInvalid      = errors.New("invalid config")
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errRootEmpty          = errors.New("root cannot be empty")
	errInvalidLogLevel    = errors.New("invalid log_level (must be debug|info|warn|error)")
	errInvalidColor       = errors.New("invalid color (must be auto|always|never)")
)

// Config holds the CLI options. The shelf schema itself lives in the
// shelf root, not here.
type Config struct {
	// Root is the shelf directory, relative to the working directory.
	Root string `json:"root" jsonschema:"description=Shelf root directory relative to the working directory"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"` //nolint:tagliatelle // snake_case for config file

	// Color is one of auto, always, never.
	Color string `json:"color,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`

	// Resolved at load time, never read from files.
	RootAbs      string        `json:"-"`
	EffectiveCwd string        `json:"-"`
	Sources      ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Root:     ".",
		LogLevel: "warn",
		Color:    "auto",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".shelfrc.json"

// globalConfigPath returns $XDG_CONFIG_HOME/shelf/config.json, falling back
// to ~/.config/shelf/config.json. Returns "" if neither can be determined.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "shelf", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "shelf", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/shelf/config.json)
// 3. Project config file in workDir (.shelfrc.json, if exists)
// 4. Explicit config file via configPath (replaces 3, must exist)
// 5. CLI overrides.
func LoadConfig(workDir, configPath string, overrides Config, env map[string]string) (Config, error) {
	cfg := DefaultConfig()

	if path := globalConfigPath(env); path != "" {
		fileCfg, loaded, err := loadConfigFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, fileCfg)
			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, ConfigFileName), false
	if configPath != "" {
		projectPath, mustExist = configPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	fileCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, fileCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = mergeConfig(cfg, overrides)

	err = validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.RootAbs = cfg.Root
	if !filepath.IsAbs(cfg.RootAbs) {
		cfg.RootAbs = filepath.Join(workDir, cfg.RootAbs)
	}

	return cfg, nil
}

// loadConfigFile loads a config file. If mustExist is false, a missing file
// returns loaded=false.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "root": "" is an error, not "use the default".
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, exists := raw["root"]; exists {
		if str, ok := val.(string); ok && str == "" {
			return Config{}, errRootEmpty
		}
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Root != "" {
		base.Root = overlay.Root
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.Color != "" {
		base.Color = overlay.Color
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Root == "" {
		return errRootEmpty
	}

	_, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	switch cfg.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("%w: %q", errInvalidColor, cfg.Color)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", errInvalidLogLevel, s)
	}
}
