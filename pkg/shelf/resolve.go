package shelf

import (
	"fmt"
	"slices"
	"time"

	"github.com/calvinalkan/shelf/pkg/value"
)

// Generators supplies auto-generated field values.
// A nil *Generators disables auto-generation, which is what lookups want:
// a lookup names an existing record, so "now" is never a useful guess.
type Generators struct {
	Clock Clock
	NewID IDFunc
}

func (g *Generators) generate(f Field) (value.Value, bool, error) {
	if g == nil || f.Auto == AutoNone {
		return value.Value{}, false, nil
	}

	switch f.Auto {
	case AutoCurrentDate:
		return Date(g.now()), true, nil
	case AutoCurrentTimestamp:
		return Timestamp(g.now()), true, nil
	case AutoUUID:
		newID := g.NewID
		if newID == nil {
			newID = NewUUIDv7
		}

		id, err := newID()
		if err != nil {
			return value.Value{}, false, fmt.Errorf("generate id: %w", err)
		}

		return value.String(id), true, nil
	default:
		return value.Value{}, false, fmt.Errorf("%w: unknown auto rule %q", ErrInvalidSchema, f.Auto)
	}
}

func (g *Generators) now() time.Time {
	if g.Clock == nil {
		return SystemClock.Now()
	}

	return g.Clock.Now()
}

// Resolved is the outcome of [Schema.Resolve].
type Resolved struct {
	// Fields holds one normalized value per schema field, in schema order.
	Fields []FieldValue

	// Attributes holds supplied attributes plus attribute defaults.
	// Optional attributes with neither are absent.
	Attributes map[string]value.Value
}

// Resolve splits provided values into fields and attributes and fills in
// everything the caller left out.
//
// Each field takes, in order of preference: the provided value, a freshly
// generated value for its auto rule, its default. A field with none of
// these fails with [ErrMissingField]. Keys that name neither a field nor an
// attribute fail with [ErrUnknownKey] before anything else is checked.
func (s Schema) Resolve(provided map[string]value.Value, gen *Generators) (Resolved, error) {
	err := s.checkKeys(provided)
	if err != nil {
		return Resolved{}, err
	}

	res := Resolved{
		Fields:     make([]FieldValue, 0, len(s.Fields)),
		Attributes: make(map[string]value.Value),
	}

	for _, f := range s.Fields {
		v, ok := provided[f.Name]

		if !ok {
			v, ok, err = gen.generate(f)
			if err != nil {
				return Resolved{}, withContext(err, f.Name, "")
			}
		}

		if !ok && f.Default != nil {
			v, ok = *f.Default, true
		}

		if !ok {
			return Resolved{}, withContext(ErrMissingField, f.Name, "")
		}

		n, err := f.Normalize(v)
		if err != nil {
			return Resolved{}, withContext(err, f.Name, "")
		}

		res.Fields = append(res.Fields, FieldValue{Name: f.Name, Value: n})
	}

	for _, a := range s.Attributes {
		if v, ok := provided[a.Name]; ok {
			res.Attributes[a.Name] = v

			continue
		}

		if a.Default != nil {
			res.Attributes[a.Name] = *a.Default

			continue
		}

		if a.Required {
			return Resolved{}, withContext(ErrMissingField, a.Name, "")
		}
	}

	return res, nil
}

func (s Schema) checkKeys(provided map[string]value.Value) error {
	var unknown []string

	for k := range provided {
		if _, ok := s.Field(k); ok {
			continue
		}

		if _, ok := s.attribute(k); ok {
			continue
		}

		unknown = append(unknown, k)
	}

	if len(unknown) == 0 {
		return nil
	}

	slices.Sort(unknown)

	return withContext(fmt.Errorf("%w: %q (fields: %v, attributes: %v)", ErrUnknownKey, unknown[0], s.FieldNames(), s.AttributeNames()), unknown[0], "")
}
