package shelf

import (
	"fmt"
	"slices"

	"github.com/calvinalkan/shelf/pkg/value"
)

// AttachPolicy decides what happens when an attachment name is reused
// within one record.
type AttachPolicy string

// Attachment policies.
const (
	// AttachOverwrite atomically replaces the existing file (last write wins).
	AttachOverwrite AttachPolicy = "overwrite"
	// AttachReject fails with [ErrAttachmentExists].
	AttachReject AttachPolicy = "reject"
)

// ReadErrorPolicy decides what aggregation does with a tabular attachment
// that fails to parse.
type ReadErrorPolicy string

// Read error policies.
const (
	// ReadErrorSkip leaves the occurrence out and records a [Warning].
	ReadErrorSkip ReadErrorPolicy = "skip"
	// ReadErrorFail aborts aggregation.
	ReadErrorFail ReadErrorPolicy = "fail"
)

// Default names.
const (
	DefaultMetadataName = "metadata"
	DefaultDataName     = "data"
)

// AttachmentsColumn is the metadata table column listing each record's
// non-tabular attachments. Field and attribute names may not use it.
const AttachmentsColumn = "_attachments"

// Schema describes a shelf: the ordered fields that form the directory
// path, the declared metadata attributes, and storage policies.
//
// Field order defines path depth and segment order and never changes for
// a root. Zero-valued policy and name settings take their defaults.
type Schema struct {
	Fields      []Field         `json:"fields"`
	Attributes  []Attribute     `json:"attributes,omitempty"`
	MetaName    string          `json:"metadata_name,omitempty"` //nolint:tagliatelle // snake_case for config file
	DataName    string          `json:"data_name,omitempty"`     //nolint:tagliatelle // snake_case for config file
	Attachments AttachPolicy    `json:"attachments,omitempty"`
	OnReadError ReadErrorPolicy `json:"on_read_error,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// withDefaults fills zero-valued settings. Field types default to string.
func (s Schema) withDefaults() Schema {
	out := s
	out.Fields = slices.Clone(s.Fields)
	out.Attributes = slices.Clone(s.Attributes)

	for i := range out.Fields {
		out.Fields[i].Type = out.Fields[i].typ()
	}

	if out.MetaName == "" {
		out.MetaName = DefaultMetadataName
	}

	if out.DataName == "" {
		out.DataName = DefaultDataName
	}

	if out.Attachments == "" {
		out.Attachments = AttachOverwrite
	}

	if out.OnReadError == "" {
		out.OnReadError = ReadErrorSkip
	}

	return out
}

// Depth returns the number of directory levels below the root.
func (s Schema) Depth() int {
	return len(s.Fields)
}

// FieldNames returns field names in path order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}

	return names
}

// AttributeNames returns attribute names in declaration order.
func (s Schema) AttributeNames() []string {
	names := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		names[i] = a.Name
	}

	return names
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

func (s Schema) attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}

	return Attribute{}, false
}

// MetadataFile returns the metadata file name inside each record directory.
func (s Schema) MetadataFile() string {
	return s.withDefaults().MetaName + ".json"
}

// Validate checks names, types, rules and defaults. It returns an error
// wrapping [ErrInvalidSchema] naming the first problem.
func (s Schema) Validate() error {
	s = s.withDefaults()

	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidSchema)
	}

	seen := make(map[string]string, len(s.Fields)+len(s.Attributes))

	claim := func(name, kind string) error {
		if !isValidName(name) {
			return fmt.Errorf("%w: invalid %s name %q: must start with a letter and contain only letters, digits, '_' or '-'", ErrInvalidSchema, kind, name)
		}

		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s name %q already used by a %s", ErrInvalidSchema, kind, name, prev)
		}

		seen[name] = kind

		return nil
	}

	for _, f := range s.Fields {
		err := claim(f.Name, "field")
		if err != nil {
			return err
		}

		err = validateField(f)
		if err != nil {
			return err
		}
	}

	for _, a := range s.Attributes {
		err := claim(a.Name, "attribute")
		if err != nil {
			return err
		}

		if a.Default != nil && a.Default.IsNull() {
			return fmt.Errorf("%w: attribute %q: default must not be null", ErrInvalidSchema, a.Name)
		}
	}

	for _, name := range []string{s.MetaName, s.DataName} {
		if !isValidName(name) {
			return fmt.Errorf("%w: invalid file name %q", ErrInvalidSchema, name)
		}
	}

	switch s.Attachments {
	case AttachOverwrite, AttachReject:
	default:
		return fmt.Errorf("%w: unknown attachments policy %q", ErrInvalidSchema, s.Attachments)
	}

	switch s.OnReadError {
	case ReadErrorSkip, ReadErrorFail:
	default:
		return fmt.Errorf("%w: unknown on_read_error policy %q", ErrInvalidSchema, s.OnReadError)
	}

	return nil
}

func validateField(f Field) error {
	switch f.Type {
	case TypeString, TypeInt, TypeDate, TypeTimestamp:
	default:
		return fmt.Errorf("%w: field %q: unknown type %q", ErrInvalidSchema, f.Name, f.Type)
	}

	want := map[AutoRule]FieldType{
		AutoCurrentDate:      TypeDate,
		AutoCurrentTimestamp: TypeTimestamp,
		AutoUUID:             TypeString,
	}

	if f.Auto != AutoNone {
		typ, ok := want[f.Auto]
		if !ok {
			return fmt.Errorf("%w: field %q: unknown auto rule %q", ErrInvalidSchema, f.Name, f.Auto)
		}

		if typ != f.Type {
			return fmt.Errorf("%w: field %q: auto rule %q needs type %s, got %s", ErrInvalidSchema, f.Name, f.Auto, typ, f.Type)
		}
	}

	if f.Default != nil {
		_, err := f.Segment(*f.Default)
		if err != nil {
			return fmt.Errorf("%w: field %q: default: %w", ErrInvalidSchema, f.Name, err)
		}
	}

	return nil
}

// Equal reports whether two schemas describe the same layout and policies
// once defaults are applied.
func (s Schema) Equal(o Schema) bool {
	s, o = s.withDefaults(), o.withDefaults()

	if s.MetaName != o.MetaName || s.DataName != o.DataName ||
		s.Attachments != o.Attachments || s.OnReadError != o.OnReadError {
		return false
	}

	fieldEq := func(a, b Field) bool {
		return a.Name == b.Name && a.Type == b.Type && a.Auto == b.Auto && optionalEqual(a.Default, b.Default)
	}

	attrEq := func(a, b Attribute) bool {
		return a.Name == b.Name && a.Required == b.Required && optionalEqual(a.Default, b.Default)
	}

	return slices.EqualFunc(s.Fields, o.Fields, fieldEq) &&
		slices.EqualFunc(s.Attributes, o.Attributes, attrEq)
}

func optionalEqual(a, b *value.Value) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Equal(*b)
}

func isValidName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}

	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '-'):
		default:
			return false
		}
	}

	return true
}
