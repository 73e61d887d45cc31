package shelf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/shelf/pkg/fs"
	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	recordLockName = ".attach.lock"
)

// Record is a handle to one record directory.
type Record struct {
	shelf  *Shelf
	rel    string
	fields []FieldValue
	meta   map[string]value.Value
}

// Create resolves provided into a new record and writes its metadata file.
//
// The record directory is created with an exclusive mkdir, so when two
// callers race for the same path exactly one succeeds and the other gets
// [ErrDuplicateRecord]. If the metadata write fails the directory is
// removed again.
func (s *Shelf) Create(provided map[string]value.Value) (*Record, error) {
	res, err := s.Resolve(provided)
	if err != nil {
		return nil, err
	}

	rel, err := s.schema.Encode(res.Fields)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, rel)

	err = s.opts.FS.MkdirAll(filepath.Dir(dir), dirPerm)
	if err != nil {
		return nil, withContext(fmt.Errorf("create parent: %w", err), "", rel)
	}

	err = s.opts.FS.Mkdir(dir, dirPerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, withContext(ErrDuplicateRecord, "", rel)
		}

		return nil, withContext(fmt.Errorf("create record dir: %w", err), "", rel)
	}

	data, err := json.MarshalIndent(res.Attributes, "", "  ")
	if err == nil {
		err = s.opts.FS.WriteFile(filepath.Join(dir, s.schema.MetadataFile()), append(data, '\n'), filePerm)
	}

	if err != nil {
		err = fmt.Errorf("write metadata: %w", err)

		rmErr := s.opts.FS.Remove(dir)
		if rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove incomplete record: %w", rmErr))
		}

		return nil, withContext(err, "", rel)
	}

	s.opts.Logger.Info("record created", "path", rel)

	return &Record{shelf: s, rel: rel, fields: res.Fields, meta: res.Attributes}, nil
}

// Open returns the existing record identified by field values.
//
// Fields without a provided value fall back to their defaults; auto rules
// are not applied. Attribute keys are rejected with [ErrUnknownKey].
// Returns [ErrRecordNotFound] if the directory or its metadata file is
// missing.
func (s *Shelf) Open(provided map[string]value.Value) (*Record, error) {
	lookup := s.schema
	lookup.Attributes = nil

	res, err := lookup.Resolve(provided, nil)
	if err != nil {
		return nil, err
	}

	rel, err := s.schema.Encode(res.Fields)
	if err != nil {
		return nil, err
	}

	meta, err := readMetadata(s.opts.FS, filepath.Join(s.root, rel, s.schema.MetadataFile()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, withContext(ErrRecordNotFound, "", rel)
		}

		return nil, withContext(err, "", rel)
	}

	return &Record{shelf: s, rel: rel, fields: res.Fields, meta: meta}, nil
}

func readMetadata(fsys fs.FS, path string) (map[string]value.Value, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta map[string]value.Value

	err = json.Unmarshal(data, &meta)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrCorruptRecord, err)
	}

	if meta == nil {
		return nil, fmt.Errorf("%w: metadata is not an object", ErrCorruptRecord)
	}

	return meta, nil
}

// Path returns the record directory.
func (r *Record) Path() string {
	return filepath.Join(r.shelf.root, r.rel)
}

// RelPath returns the record directory relative to the shelf root.
func (r *Record) RelPath() string { return r.rel }

// Fields returns the record's field values in schema order.
func (r *Record) Fields() []FieldValue { return slices.Clone(r.fields) }

// Field returns the value of the named field.
func (r *Record) Field(name string) (value.Value, bool) {
	for _, fv := range r.fields {
		if fv.Name == name {
			return fv.Value, true
		}
	}

	return value.Value{}, false
}

// Metadata returns a copy of the record's metadata.
func (r *Record) Metadata() map[string]value.Value { return maps.Clone(r.meta) }

// Attach serializes t by the extension of name and writes it into the
// record directory. The extension must be registered in the shelf's format
// registry.
func (r *Record) Attach(t *table.Table, name string) error {
	err := r.checkAttachment(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer

	err = r.shelf.opts.Formats.Write(name, &buf, t)
	if err != nil {
		return withContext(fmt.Errorf("encode %s: %w", name, err), "", r.rel)
	}

	return r.store(name, &buf)
}

// AttachBytes writes data verbatim as the attachment name.
func (r *Record) AttachBytes(data []byte, name string) error {
	return r.AttachReader(bytes.NewReader(data), name)
}

// AttachReader copies src verbatim into the attachment name.
func (r *Record) AttachReader(src io.Reader, name string) error {
	err := r.checkAttachment(name)
	if err != nil {
		return err
	}

	return r.store(name, src)
}

// Save attaches t as the record's default data table, "<data name>.csv".
func (r *Record) Save(t *table.Table) error {
	return r.Attach(t, r.shelf.schema.DataName+".csv")
}

func (r *Record) checkAttachment(name string) error {
	err := validateSegment(name)
	if err != nil {
		return withContext(fmt.Errorf("%w: %w", ErrInvalidAttachmentName, err), "", r.rel)
	}

	if name == r.shelf.schema.MetadataFile() {
		return withContext(fmt.Errorf("%w: %q is the metadata file", ErrInvalidAttachmentName, name), "", r.rel)
	}

	return nil
}

// store writes the attachment according to the shelf's attachments policy.
// Under the reject policy the existence check and the write happen under
// the record's lock.
func (r *Record) store(name string, src io.Reader) error {
	if r.shelf.schema.Attachments != AttachReject {
		return r.write(name, src)
	}

	lock, err := r.shelf.opts.FS.Lock(filepath.Join(r.Path(), recordLockName))
	if err != nil {
		return withContext(fmt.Errorf("lock record: %w", err), "", r.rel)
	}
	defer func() { _ = lock.Close() }()

	exists, err := r.shelf.opts.FS.Exists(filepath.Join(r.Path(), name))
	if err != nil {
		return withContext(err, "", r.rel)
	}

	if exists {
		return withContext(fmt.Errorf("%w: %s", ErrAttachmentExists, name), "", r.rel)
	}

	return r.write(name, src)
}

func (r *Record) write(name string, src io.Reader) error {
	err := r.shelf.opts.FS.WriteStream(filepath.Join(r.Path(), name), src, filePerm)
	if err != nil {
		return withContext(fmt.Errorf("write %s: %w", name, err), "", r.rel)
	}

	r.shelf.opts.Logger.Debug("attachment written", "path", r.rel, "name", name)

	return nil
}

// Files lists the record's attachments by name, sorted.
func (r *Record) Files() ([]string, error) {
	entries, err := r.shelf.opts.FS.ReadDir(r.Path())
	if err != nil {
		return nil, withContext(err, "", r.rel)
	}

	return attachmentNames(entries, r.shelf.schema.MetadataFile()), nil
}

// ReadTable parses the named attachment with the shelf's format registry.
func (r *Record) ReadTable(name string) (*table.Table, error) {
	f, err := r.shelf.opts.FS.Open(filepath.Join(r.Path(), name))
	if err != nil {
		return nil, withContext(err, "", r.rel)
	}
	defer func() { _ = f.Close() }()

	t, err := r.shelf.opts.Formats.Read(name, f)
	if err != nil {
		return nil, withContext(fmt.Errorf("read %s: %w", name, err), "", r.rel)
	}

	return t, nil
}

// attachmentNames returns regular, non-hidden file names other than the
// metadata file.
func attachmentNames(entries []os.DirEntry, metadataFile string) []string {
	var names []string

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == metadataFile {
			continue
		}

		names = append(names, e.Name())
	}

	return names
}
