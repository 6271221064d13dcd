// Package normalize rewrites arbitrary Go values into the small set of plain
// types that serialize the same way everywhere: nil, bool, int64, float64,
// string, []any and *OrderedMap.
package normalize

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// OrderedMap is a string-keyed mapping that keeps insertion order.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty mapping.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: map[string]any{}}
}

// Set inserts or replaces a key. Replacing keeps the original position.
// The zero OrderedMap is ready to use.
func (m *OrderedMap) Set(key string, v any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string { return append([]string(nil), m.keys...) }

// Len returns the number of keys.
func (m *OrderedMap) Len() int { return len(m.keys) }

// MarshalJSON writes the keys in insertion order.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Normalizer is implemented by values that choose their own normalized
// shape, e.g. a matrix that should read as a keyed mapping.
type Normalizer interface {
	Normalize() any
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	orderedMapType = reflect.TypeOf(&OrderedMap{})
	normalizerType = reflect.TypeOf((*Normalizer)(nil)).Elem()
)

// Value normalizes v. Structs become ordered mappings keyed by their json
// tags, maps become ordered mappings with sorted keys, typed slices and
// arrays become []any, NaN and infinities become nil and times render as
// calendar dates. Normalizing a normalized value returns an equal value.
func Value(v any) any {
	if v == nil {
		return nil
	}
	return walk(reflect.ValueOf(v))
}

func walk(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	if rv.Type() == orderedMapType {
		if rv.IsNil() {
			return nil
		}
		src := rv.Interface().(*OrderedMap)
		out := NewOrderedMap()
		for _, k := range src.keys {
			out.Set(k, Value(src.values[k]))
		}
		return out
	}
	if rv.Type().Implements(normalizerType) && rv.CanInterface() {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return Value(rv.Interface().(Normalizer).Normalize())
	}
	if rv.Type() == timeType {
		t := rv.Interface().(time.Time)
		if t.IsZero() {
			return nil
		}
		return t.Format("2006-01-02")
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return walk(rv.Elem())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.String:
		return rv.String()
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = walk(rv.Index(i))
		}
		return out
	case reflect.Map:
		return walkMap(rv)
	case reflect.Struct:
		return walkStruct(rv)
	default:
		return fmt.Sprint(rv.Interface())
	}
}

func walkMap(rv reflect.Value) any {
	if rv.IsNil() {
		return nil
	}
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	out := NewOrderedMap()
	for _, e := range entries {
		out.Set(e.key, walk(e.val))
	}
	return out
}

func walkStruct(rv reflect.Value) any {
	out := NewOrderedMap()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty := f.Name, false
		if tag, ok := f.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if omitEmpty && isEmpty(fv) {
			continue
		}
		out.Set(name, walk(fv))
	}
	return out
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}

// JSON normalizes v and encodes it as indented JSON.
func JSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(Value(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return b, nil
}
