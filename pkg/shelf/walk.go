package shelf

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/shelf/pkg/value"
)

// RecordView is one record as found on disk by a [Walker].
type RecordView struct {
	// Fields holds the values decoded from the record path, in schema order.
	Fields []FieldValue

	// Path is the record directory relative to the shelf root.
	Path string

	// Metadata is the parsed metadata file.
	Metadata map[string]value.Value

	// Files lists attachment names, sorted.
	Files []string
}

// Walker enumerates the records under a shelf root.
//
// Each directory is listed once, when the walk reaches it, so the walk sees
// a snapshot per directory rather than of the whole tree. Anything that
// does not look like a record is skipped with a [Warning]: stray files
// above record depth, segments that do not parse for their field,
// directories without a readable metadata file, and subdirectories inside
// record directories. Hidden entries are skipped silently.
//
// A Walker is single-use and not safe for concurrent use.
type Walker struct {
	shelf    *Shelf
	warnings []Warning
	err      error
}

// Walker returns a new walker over the shelf.
func (s *Shelf) Walker() *Walker {
	return &Walker{shelf: s}
}

// Err returns the error that stopped the walk early, if any: an unreadable
// root or a cancelled context.
func (w *Walker) Err() error { return w.err }

// Warnings returns the problems skipped so far.
func (w *Walker) Warnings() []Warning { return w.warnings }

// All yields every well-formed record in path order.
// Check [Walker.Err] after the loop.
func (w *Walker) All(ctx context.Context) iter.Seq[RecordView] {
	return func(yield func(RecordView) bool) {
		entries, err := w.shelf.opts.FS.ReadDir(w.shelf.root)
		if err != nil {
			w.err = fmt.Errorf("read root: %w", err)

			return
		}

		w.descend(ctx, entries, nil, yield)
	}
}

// descend visits the children of the directory at segs. It returns false
// when the walk must stop.
func (w *Walker) descend(ctx context.Context, entries []os.DirEntry, segs []string, yield func(RecordView) bool) bool {
	depth := w.shelf.schema.Depth()

	for _, e := range entries {
		err := ctx.Err()
		if err != nil {
			w.err = err

			return false
		}

		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		child := append(slices.Clone(segs), e.Name())
		rel := filepath.Join(child...)

		if !e.IsDir() {
			w.warn(rel, errors.New("unexpected file above record depth"))

			continue
		}

		sub, err := w.shelf.opts.FS.ReadDir(filepath.Join(w.shelf.root, rel))
		if err != nil {
			w.warn(rel, err)

			continue
		}

		if len(child) < depth {
			if !w.descend(ctx, sub, child, yield) {
				return false
			}

			continue
		}

		view, ok := w.record(child, sub)
		if ok && !yield(view) {
			return false
		}
	}

	return true
}

func (w *Walker) record(segs []string, entries []os.DirEntry) (RecordView, bool) {
	rel := filepath.Join(segs...)
	schema := w.shelf.schema

	fields, err := schema.decodeSegments(segs)
	if err != nil {
		w.warn(rel, err)

		return RecordView{}, false
	}

	meta, err := readMetadata(w.shelf.opts.FS, filepath.Join(w.shelf.root, rel, schema.MetadataFile()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = errors.New("missing metadata file")
		}

		w.warn(rel, err)

		return RecordView{}, false
	}

	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.warn(filepath.Join(rel, e.Name()), errors.New("unexpected directory below record depth"))
		}
	}

	return RecordView{
		Fields:   fields,
		Path:     rel,
		Metadata: meta,
		Files:    attachmentNames(entries, schema.MetadataFile()),
	}, true
}

func (w *Walker) warn(rel string, err error) {
	if !errors.Is(err, ErrCorruptRecord) {
		err = fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}

	w.addWarning(Warning{Path: rel, Err: err})
}

func (w *Walker) addWarning(warning Warning) {
	w.warnings = append(w.warnings, warning)
	w.shelf.opts.Logger.Warn("skipping", "path", warning.Path, "error", warning.Err)
}

// Records walks the whole shelf and collects the result.
func (s *Shelf) Records(ctx context.Context) ([]RecordView, []Warning, error) {
	w := s.Walker()

	var views []RecordView

	for view := range w.All(ctx) {
		views = append(views, view)
	}

	return views, w.Warnings(), w.Err()
}
