package shelf

import (
	"fmt"
	"strconv"
	"time"

	"github.com/calvinalkan/shelf/pkg/value"
)

// Segment layouts for date and timestamp fields.
const (
	DateLayout      = "2006-01-02"          // YYYY-MM-DD
	TimestampLayout = "2006-01-02_15-04-05" // YYYY-MM-DD_HH-MM-SS
)

// FieldType decides how a field value is normalized, written as a path
// segment, and parsed back.
type FieldType string

// Field types.
const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
)

// AutoRule generates a value for a field the caller left unset.
// Rules are evaluated at resolve time, never at schema definition time.
type AutoRule string

// Auto-generation rules.
const (
	AutoNone             AutoRule = ""
	AutoCurrentDate      AutoRule = "current-date"
	AutoCurrentTimestamp AutoRule = "current-timestamp"
	AutoUUID             AutoRule = "uuid"
)

// Field is one schema slot. Each field contributes one directory level,
// in schema order.
type Field struct {
	Name    string       `json:"name"`
	Type    FieldType    `json:"type,omitempty"`
	Default *value.Value `json:"default,omitempty"`
	Auto    AutoRule     `json:"auto,omitempty"`
}

// StringField returns a plain field. The value must be provided unless a
// default is set with [Field.WithDefault].
func StringField(name string) Field {
	return Field{Name: name, Type: TypeString}
}

// IntField returns a field holding an integer.
func IntField(name string) Field {
	return Field{Name: name, Type: TypeInt}
}

// DateField returns a date field that defaults to the current local date.
func DateField(name string) Field {
	return Field{Name: name, Type: TypeDate, Auto: AutoCurrentDate}
}

// TimestampField returns a timestamp field that defaults to the current
// local date and time.
func TimestampField(name string) Field {
	return Field{Name: name, Type: TypeTimestamp, Auto: AutoCurrentTimestamp}
}

// UUIDField returns a string field that defaults to a fresh UUIDv7.
func UUIDField(name string) Field {
	return Field{Name: name, Type: TypeString, Auto: AutoUUID}
}

// WithDefault returns a copy of f with a default value.
func (f Field) WithDefault(v value.Value) Field {
	f.Default = &v

	return f
}

func (f Field) typ() FieldType {
	if f.Type == "" {
		return TypeString
	}

	return f.Type
}

// Normalize converts v to the canonical value for this field:
//   - string fields accept strings, numbers and bools (stringified)
//   - int fields accept ints and canonical integer strings
//   - date and timestamp fields accept strings in their layout
//
// Anything else fails with [ErrInvalidFieldValue].
func (f Field) Normalize(v value.Value) (value.Value, error) {
	switch f.typ() {
	case TypeString:
		switch v.Kind() {
		case value.KindString, value.KindInt, value.KindFloat, value.KindBool:
			return value.String(v.Text()), nil
		}
	case TypeInt:
		if i, ok := v.AsInt(); ok {
			return value.Int(i), nil
		}

		if s, ok := v.AsString(); ok {
			return f.parseInt(s)
		}
	case TypeDate:
		if s, ok := v.AsString(); ok {
			return f.parseTime(s, DateLayout)
		}
	case TypeTimestamp:
		if s, ok := v.AsString(); ok {
			return f.parseTime(s, TimestampLayout)
		}
	default:
		return value.Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchema, f.Type)
	}

	return value.Value{}, fmt.Errorf("%w: %s field does not accept %s %v", ErrInvalidFieldValue, f.typ(), v.Kind(), v)
}

// Segment returns the path segment for a normalized value.
func (f Field) Segment(v value.Value) (string, error) {
	n, err := f.Normalize(v)
	if err != nil {
		return "", err
	}

	seg := n.Text()

	err = validateSegment(seg)
	if err != nil {
		return "", err
	}

	return seg, nil
}

// Parse converts a path segment back into the field's value.
// It accepts exactly the segments [Field.Segment] produces.
func (f Field) Parse(seg string) (value.Value, error) {
	err := validateSegment(seg)
	if err != nil {
		return value.Value{}, err
	}

	return f.Normalize(value.String(seg))
}

// Time returns the instant held by a date or timestamp value, in local time.
func (f Field) Time(v value.Value) (time.Time, error) {
	s, ok := v.AsString()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is not a string", ErrInvalidFieldValue, v)
	}

	switch f.typ() {
	case TypeDate:
		return time.ParseInLocation(DateLayout, s, time.Local)
	case TypeTimestamp:
		return time.ParseInLocation(TimestampLayout, s, time.Local)
	default:
		return time.Time{}, fmt.Errorf("%w: %s field has no time", ErrInvalidFieldValue, f.typ())
	}
}

func (f Field) parseInt(s string) (value.Value, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil || strconv.FormatInt(i, 10) != s {
		return value.Value{}, fmt.Errorf("%w: %q is not a canonical integer", ErrInvalidFieldValue, s)
	}

	return value.Int(i), nil
}

func (f Field) parseTime(s, layout string) (value.Value, error) {
	t, err := time.Parse(layout, s)
	if err != nil || t.Format(layout) != s {
		return value.Value{}, fmt.Errorf("%w: %q does not match layout %s", ErrInvalidFieldValue, s, layout)
	}

	return value.String(s), nil
}

// Date formats t as a date field value.
func Date(t time.Time) value.Value {
	return value.String(t.Format(DateLayout))
}

// Timestamp formats t as a timestamp field value.
func Timestamp(t time.Time) value.Value {
	return value.String(t.Format(TimestampLayout))
}

// Attribute is a declared metadata key. Attributes are stored in the
// record's metadata file and never affect the path.
type Attribute struct {
	Name     string       `json:"name"`
	Required bool         `json:"required,omitempty"`
	Default  *value.Value `json:"default,omitempty"`
}

// Attr returns an optional attribute.
func Attr(name string) Attribute {
	return Attribute{Name: name}
}

// RequiredAttr returns an attribute that create fails without.
func RequiredAttr(name string) Attribute {
	return Attribute{Name: name, Required: true}
}

// FieldValue is a resolved field name and its normalized value.
type FieldValue struct {
	Name  string
	Value value.Value
}
