// Package format maps attachment file extensions to table readers and
// writers.
//
// A [Registry] holds one [Codec] per extension. Files whose extension has
// no codec are opaque: they can be stored and listed but not merged into
// tables. New formats are added with [Registry.Register].
package format

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/shelf/pkg/table"
)

// ErrUnsupported reports a file name whose extension has no registered codec.
var ErrUnsupported = errors.New("unsupported format")

// Codec reads and writes one tabular file format.
type Codec interface {
	// Read parses a whole file into a table.
	Read(r io.Reader) (*table.Table, error)
	// Write serializes t. Null cells are written in the format's own way.
	Write(w io.Writer, t *table.Table) error
}

// Registry maps lower-case extensions (with the leading dot) to codecs.
// A Registry is not safe for concurrent registration; build it before use.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Default returns a registry with the built-in formats:
// .csv, .tsv, .json, .jsonl, .ndjson, .yaml and .yml.
func Default() *Registry {
	r := NewRegistry()
	r.Register(".csv", CSV{Comma: ','})
	r.Register(".tsv", CSV{Comma: '\t'})
	r.Register(".json", JSON{})
	r.Register(".jsonl", JSONLines{})
	r.Register(".ndjson", JSONLines{})
	r.Register(".yaml", YAML{})
	r.Register(".yml", YAML{})

	return r
}

// Register binds a codec to an extension, replacing any previous binding.
// The extension may be given with or without the leading dot.
func (r *Registry) Register(ext string, c Codec) {
	if c == nil {
		panic("format: nil codec")
	}

	r.codecs[normalizeExt(ext)] = c
}

// Lookup returns the codec for a file name, by extension.
func (r *Registry) Lookup(name string) (Codec, bool) {
	c, ok := r.codecs[normalizeExt(filepath.Ext(name))]

	return c, ok
}

// IsTabular reports whether name has a registered codec.
func (r *Registry) IsTabular(name string) bool {
	_, ok := r.Lookup(name)

	return ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	return slices.Sorted(maps.Keys(r.codecs))
}

// Read parses src using the codec registered for name.
func (r *Registry) Read(name string, src io.Reader) (*table.Table, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}

	return c.Read(src)
}

// Write serializes t using the codec registered for name.
func (r *Registry) Write(name string, dst io.Writer, t *table.Table) error {
	c, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, name)
	}

	return c.Write(dst, t)
}

// Stem returns name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}
