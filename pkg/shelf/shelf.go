package shelf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/calvinalkan/shelf/pkg/format"
	"github.com/calvinalkan/shelf/pkg/fs"
	"github.com/calvinalkan/shelf/pkg/value"
)

// LockFileName is the root-level file writers flock while they check and
// then write. It is hidden, so walks never see it.
const LockFileName = ".shelf.lock"

// Options configures a [Shelf]. The zero value is ready to use.
type Options struct {
	// Clock supplies "now" for date and timestamp fields.
	// Defaults to [SystemClock].
	Clock Clock

	// NewID generates values for uuid fields. Defaults to [NewUUIDv7].
	NewID IDFunc

	// Logger receives walk warnings and record lifecycle events.
	// Defaults to a logger that discards everything.
	Logger *slog.Logger

	// FS is the filesystem the shelf lives on. Defaults to [fs.Real].
	FS fs.FS

	// Formats maps attachment extensions to table codecs.
	// Defaults to [format.Default].
	Formats *format.Registry
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock
	}

	if o.NewID == nil {
		o.NewID = NewUUIDv7
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Formats == nil {
		o.Formats = format.Default()
	}

	return o
}

// Shelf is a schema bound to a root directory.
//
// A Shelf is immutable. It is safe for concurrent use, but concurrent
// creates of the same record race on the filesystem: exactly one wins
// and the others get [ErrDuplicateRecord].
type Shelf struct {
	root   string
	schema Schema
	opts   Options
	gen    *Generators
}

// Define creates a shelf at root, writing its schema file.
//
// If root already holds a schema equal to schema, Define opens it as is.
// If it holds a different one, Define fails with [ErrSchemaMismatch] and
// leaves the root untouched.
func Define(root string, schema Schema, opts Options) (*Shelf, error) {
	opts = opts.withDefaults()

	err := schema.Validate()
	if err != nil {
		return nil, err
	}

	schema = schema.withDefaults()

	err = opts.FS.MkdirAll(root, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	// Concurrent defines of a fresh root must not both write a config.
	lock, err := opts.FS.Lock(filepath.Join(root, LockFileName))
	if err != nil {
		return nil, fmt.Errorf("lock root: %w", err)
	}
	defer func() { _ = lock.Close() }()

	existing, err := LoadConfig(opts.FS, root)

	switch {
	case err == nil:
		if !existing.Equal(schema) {
			return nil, fmt.Errorf("%w: %s already holds a different schema", ErrSchemaMismatch, root)
		}

		return newShelf(root, existing, opts), nil
	case !errors.Is(err, ErrNotShelf):
		return nil, err
	}

	err = SaveConfig(opts.FS, root, schema)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("shelf defined", "root", root, "fields", schema.FieldNames())

	return newShelf(root, schema, opts), nil
}

// Load opens the shelf at root using its persisted schema.
func Load(root string, opts Options) (*Shelf, error) {
	opts = opts.withDefaults()

	schema, err := LoadConfig(opts.FS, root)
	if err != nil {
		return nil, err
	}

	return newShelf(root, schema, opts), nil
}

func newShelf(root string, schema Schema, opts Options) *Shelf {
	return &Shelf{
		root:   filepath.Clean(root),
		schema: schema,
		opts:   opts,
		gen:    &Generators{Clock: opts.Clock, NewID: opts.NewID},
	}
}

// Root returns the shelf's root directory.
func (s *Shelf) Root() string { return s.root }

// Schema returns the shelf's schema with defaults applied.
func (s *Shelf) Schema() Schema { return s.schema }

// Resolve applies the shelf's schema and generators to provided.
func (s *Shelf) Resolve(provided map[string]value.Value) (Resolved, error) {
	return s.schema.Resolve(provided, s.gen)
}
