package shelf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/shelf/pkg/fs"
)

// ConfigFileName is the schema file at the top of every shelf root.
// It is hidden, so walks never mistake it for a record directory.
const ConfigFileName = ".shelf.json"

// configVersion is bumped on incompatible layout changes.
const configVersion = 1

type configFile struct {
	Version int `json:"version"`
	Schema
}

// ConfigPath returns the schema file location for root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigFileName)
}

// LoadConfig reads the schema persisted under root. The file may contain
// comments and trailing commas.
//
// Returns [ErrNotShelf] if the file is missing and [ErrInvalidSchema] if it
// does not parse or validate.
func LoadConfig(fsys fs.FS, root string) (Schema, error) {
	path := ConfigPath(root)

	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Schema{}, fmt.Errorf("%w: %s", ErrNotShelf, root)
		}

		return Schema{}, fmt.Errorf("read config: %w", err)
	}

	schema, err := parseConfig(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%w %s: %w", ErrInvalidSchema, path, err)
	}

	return schema, nil
}

func parseConfig(data []byte) (Schema, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Schema{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg configFile

	err = dec.Decode(&cfg)
	if err != nil {
		return Schema{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if cfg.Version != configVersion {
		return Schema{}, fmt.Errorf("unsupported version %d (want %d)", cfg.Version, configVersion)
	}

	err = cfg.Schema.Validate()
	if err != nil {
		return Schema{}, err
	}

	return cfg.Schema.withDefaults(), nil
}

// SaveConfig writes schema under root, replacing any existing file.
func SaveConfig(fsys fs.FS, root string, schema Schema) error {
	data, err := FormatConfig(schema)
	if err != nil {
		return err
	}

	err = fsys.WriteFile(ConfigPath(root), data, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// FormatConfig returns the schema file content for schema.
func FormatConfig(schema Schema) ([]byte, error) {
	data, err := json.MarshalIndent(configFile{Version: configVersion, Schema: schema.withDefaults()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("format config: %w", err)
	}

	return append(data, '\n'), nil
}
