package shelf

import (
	"errors"
	"strings"
)

// Construction-time errors. These abort the single operation that hit them.
var (
	// ErrMissingField reports a required field or attribute with no value
	// and no default.
	ErrMissingField = errors.New("missing field")

	// ErrUnknownKey reports a key that is neither a field nor an attribute.
	ErrUnknownKey = errors.New("unknown key")

	// ErrInvalidFieldValue reports a value that cannot be used as a path
	// segment for its field.
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrDuplicateRecord reports that the resolved record directory exists.
	ErrDuplicateRecord = errors.New("record already exists")

	// ErrSchemaMismatch reports that a root already holds a different schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidSchema reports a schema definition or config file that fails
	// validation.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrNotShelf reports a root without a shelf config file.
	ErrNotShelf = errors.New("not a shelf")

	// ErrRecordNotFound reports a lookup of a record that does not exist or
	// has no metadata file yet.
	ErrRecordNotFound = errors.New("record not found")

	// ErrAttachmentExists reports a re-attach under the reject policy.
	ErrAttachmentExists = errors.New("attachment already exists")

	// ErrInvalidAttachmentName reports an attachment name that is not a safe
	// single path segment or shadows the metadata file.
	ErrInvalidAttachmentName = errors.New("invalid attachment name")
)

// Walk-time causes. These only ever appear inside a [Warning].
var (
	// ErrCorruptRecord marks a directory skipped during a walk: unexpected
	// depth, undecodable segment, missing or malformed metadata.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrUnreadableAttachment marks a tabular attachment that failed to parse.
	ErrUnreadableAttachment = errors.New("unreadable attachment")

	// ErrColumnConflict marks an attachment column renamed because it
	// clashed with a field column.
	ErrColumnConflict = errors.New("column conflict")
)

// Error is the error type returned by all public shelf operations.
//
// It appends record context to the cause:
//
//	missing field (field=date path=run-1)
//
// Use [errors.Is] for the sentinel and [errors.As] for the context:
//
//	var sErr *shelf.Error
//	if errors.As(err, &sErr) {
//	    fmt.Println(sErr.Field)
//	}
type Error struct {
	// Field is the field or attribute name involved, if any.
	Field string

	// Path is the record path relative to the shelf root, if known.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (field=X path=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext attaches record context at API boundaries.
// If err is already *Error, missing fields are filled in place.
func withContext(err error, field, path string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Field == "" {
			existing.Field = field
		}

		if existing.Path == "" {
			existing.Path = path
		}

		return existing
	}

	return &Error{Field: field, Path: path, Err: err}
}

// Warning is a recoverable problem found while walking or aggregating.
// The affected record or attachment is skipped; everything else proceeds.
type Warning struct {
	// Path is relative to the shelf root.
	Path string

	// Err wraps one of [ErrCorruptRecord], [ErrUnreadableAttachment] or
	// [ErrColumnConflict].
	Err error
}

func (w Warning) Error() string {
	return w.Path + ": " + w.Err.Error()
}

func (w Warning) Unwrap() error {
	return w.Err
}
