// Package value provides the tagged variant used for record attributes and
// table cells.
//
// A [Value] is one of null, bool, int, float, string, list or map. Unlike a
// bare any, the kind is explicit, so a value read back from disk has the
// same kind it was written with: integers stay integers, integral floats
// stay floats, and nested lists/maps keep their element kinds.
//
// The zero Value is null.
package value

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

// Kind values enumerate the supported variants.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable tagged variant. Construct with [Null], [Bool], [Int],
// [Float], [String], [List], [Map] or [FromAny].
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an int value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value. The slice is copied.
func List(items ...Value) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

// Map returns a map value. The map is copied.
func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: maps.Clone(m)}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the bool held by v and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the int held by v and whether v is an int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the number held by v as float64. Ints are converted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string held by v and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns a copy of the items held by v and whether v is a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}

	return slices.Clone(v.list), true
}

// AsMap returns a copy of the entries held by v and whether v is a map.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}

	return maps.Clone(v.m), true
}

// Len returns the number of items in a list or map, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Equal reports deep equality. Int and float are distinct kinds, so
// Int(1) is not equal to Float(1).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindList:
		return slices.EqualFunc(v.list, o.list, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	default:
		return false
	}
}

// Text returns the canonical text form of v: the empty string for null,
// strconv formatting for scalars, and compact JSON for lists and maps.
// Used for CSV cells and path segments.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s: %v>", v.kind, err)
		}

		return string(data)
	}
}

// String implements fmt.Stringer. Strings are quoted so that String("1")
// and Int(1) print differently.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}

	if v.kind == KindNull {
		return "null"
	}

	return v.Text()
}

// Native converts v to plain Go values: nil, bool, int64, float64, string,
// []any and map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}

		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Native()
		}

		return out
	default:
		return nil
	}
}

// Keys returns the sorted keys of a map value, or nil.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}

	return slices.Sorted(maps.Keys(v.m))
}

// Infer converts a bare text cell into the narrowest value: empty text is
// null, then int, then float, otherwise string. Booleans are not inferred.
func Infer(text string) Value {
	if text == "" {
		return Null()
	}

	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i)
	}

	if looksNumeric(text) {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Float(f)
		}
	}

	return String(text)
}

// ParseLiteral parses a JSON literal (number, bool, null, quoted string,
// array or object). Anything that is not valid JSON is taken verbatim as a
// string, so "abc" and "\"abc\"" both yield String("abc").
func ParseLiteral(text string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return String(text)
	}

	var v Value

	err := json.Unmarshal([]byte(trimmed), &v)
	if err != nil {
		return String(text)
	}

	return v
}

// looksNumeric rejects strings ParseFloat accepts but a table reader
// should keep as text, such as "NaN", "inf" or hex floats.
func looksNumeric(text string) bool {
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}

	return true
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}

	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return s
}
