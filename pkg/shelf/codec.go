package shelf

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSegmentBytes = 255

// validateSegment rejects strings that cannot be used verbatim as one
// directory name. Nothing is sanitized: a rejected value is an error.
func validateSegment(seg string) error {
	switch {
	case seg == "":
		return fmt.Errorf("%w: empty path segment", ErrInvalidFieldValue)
	case seg == "." || seg == "..":
		return fmt.Errorf("%w: %q is a relative path element", ErrInvalidFieldValue, seg)
	case len(seg) > maxSegmentBytes:
		return fmt.Errorf("%w: segment longer than %d bytes", ErrInvalidFieldValue, maxSegmentBytes)
	case !utf8.ValidString(seg):
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidFieldValue, seg)
	case strings.HasPrefix(seg, "."):
		return fmt.Errorf("%w: %q starts with '.'", ErrInvalidFieldValue, seg)
	case strings.HasSuffix(seg, " "):
		return fmt.Errorf("%w: %q ends with a space", ErrInvalidFieldValue, seg)
	}

	for _, r := range seg {
		if r == '/' || r == '\\' || r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %U", ErrInvalidFieldValue, seg, r)
		}
	}

	return nil
}

// Encode returns the record path, relative to the shelf root, for resolved
// field values. Values must be given in schema order.
func (s Schema) Encode(values []FieldValue) (string, error) {
	if len(values) != len(s.Fields) {
		return "", fmt.Errorf("%w: got %d values for %d fields", ErrInvalidFieldValue, len(values), len(s.Fields))
	}

	segs := make([]string, len(values))

	for i, f := range s.Fields {
		if values[i].Name != f.Name {
			return "", withContext(fmt.Errorf("%w: value for %q at position %d", ErrInvalidFieldValue, values[i].Name, i), f.Name, "")
		}

		seg, err := f.Segment(values[i].Value)
		if err != nil {
			return "", withContext(err, f.Name, "")
		}

		segs[i] = seg
	}

	return filepath.Join(segs...), nil
}

// Decode parses a record path, relative to the shelf root, back into field
// values. The path must have exactly one segment per field.
func (s Schema) Decode(rel string) ([]FieldValue, error) {
	segs := strings.Split(filepath.ToSlash(filepath.Clean(rel)), "/")

	return s.decodeSegments(segs)
}

func (s Schema) decodeSegments(segs []string) ([]FieldValue, error) {
	if len(segs) != len(s.Fields) {
		return nil, fmt.Errorf("%w: path has %d segments, schema has %d fields", ErrInvalidFieldValue, len(segs), len(s.Fields))
	}

	out := make([]FieldValue, len(segs))

	for i, f := range s.Fields {
		v, err := f.Parse(segs[i])
		if err != nil {
			return nil, withContext(err, f.Name, "")
		}

		out[i] = FieldValue{Name: f.Name, Value: v}
	}

	return out, nil
}
