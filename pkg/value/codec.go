package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnsupported reports a Go value or document node with no [Value] form.
var ErrUnsupported = errors.New("unsupported value")

// FromAny converts plain Go data into a Value. Accepted inputs are nil,
// bool, all integer and float kinds, string, json.Number, Value, and
// slices or string-keyed maps of those (recursively).
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return fromNumber(string(t))
	case []Value:
		return List(t...), nil
	case map[string]Value:
		return Map(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}

			items[i] = v
		}

		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}

			entries[k] = v
		}

		return Value{kind: KindMap, m: entries}, nil
	}

	return fromReflect(x)
}

// MustFromAny is like [FromAny] but panics on error. For tests and literals.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}

	return v
}

// fromReflect handles typed slices and maps ([]string, map[string]int, ...).
func fromReflect(x any) (Value, error) {
	rv := reflect.ValueOf(x)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}

		return FromAny(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key type %s", ErrUnsupported, rv.Type().Key())
		}

		entries := make(map[string]any, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			entries[iter.Key().String()] = iter.Value().Interface()
		}

		return FromAny(entries)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, x)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Float(float64(u)), nil
	}

	return Int(int64(u)), nil
}

// fromNumber keeps integer literals as ints when they fit in int64 and
// treats everything else (fractions, exponents, huge ints) as float.
func fromNumber(lit string) (Value, error) {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(i), nil
	}

	f, ok := new(big.Float).SetString(lit)
	if !ok {
		return Value{}, fmt.Errorf("%w: number %q", ErrUnsupported, lit)
	}

	out, _ := f.Float64()

	return Float(out), nil
}

// MarshalJSON implements json.Marshaler. Integral floats are written with
// a trailing ".0" so they decode back as floats.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return nil, fmt.Errorf("%w: %v is not representable in JSON", ErrUnsupported, v.f)
		}

		return []byte(formatFloat(v.f)), nil
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}

		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}

		// encoding/json sorts map keys, which keeps metadata files stable.
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any

	err := dec.Decode(&raw)
	if err != nil {
		return err
	}

	out, err := FromAny(raw)
	if err != nil {
		return err
	}

	*v = out

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	if v.kind == KindMap {
		// Emit a mapping node with sorted keys for deterministic output.
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range slices.Sorted(maps.Keys(v.m)) {
			child := &yaml.Node{}

			err := child.Encode(v.m[k])
			if err != nil {
				return nil, err
			}

			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, child)
		}

		return node, nil
	}

	if v.kind == KindList {
		items := make([]Value, len(v.list))
		copy(items, v.list)

		return items, nil
	}

	if v.kind == KindFloat && !math.IsInf(v.f, 0) && !math.IsNaN(v.f) {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(v.f)}, nil
	}

	return v.Native(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	out, err := FromYAML(node)
	if err != nil {
		return err
	}

	*v = out

	return nil
}

// FromYAML converts a decoded YAML node into a Value.
func FromYAML(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}

		return FromYAML(node.Content[0])
	case yaml.AliasNode:
		return FromYAML(node.Alias)
	case yaml.SequenceNode:
		items := make([]Value, len(node.Content))
		for i, child := range node.Content {
			item, err := FromYAML(child)
			if err != nil {
				return Value{}, err
			}

			items[i] = item
		}

		return Value{kind: KindList, list: items}, nil
	case yaml.MappingNode:
		entries := make(map[string]Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			item, err := FromYAML(node.Content[i+1])
			if err != nil {
				return Value{}, err
			}

			entries[node.Content[i].Value] = item
		}

		return Value{kind: KindMap, m: entries}, nil
	case yaml.ScalarNode:
		var raw any

		err := node.Decode(&raw)
		if err != nil {
			return Value{}, err
		}

		if _, ok := raw.(time.Time); ok {
			return String(node.Value), nil
		}

		return FromAny(raw)
	default:
		return Value{}, fmt.Errorf("%w: yaml node kind %d", ErrUnsupported, node.Kind)
	}
}

