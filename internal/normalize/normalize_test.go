package normalize

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string            `json:"name"`
	Skip    string            `json:"-"`
	Empty   []int             `json:"empty,omitempty"`
	Ratio   float32           `json:"ratio"`
	Count   uint8             `json:"count"`
	Missing *float64          `json:"missing"`
	When    time.Time         `json:"when"`
	Tags    map[string]int    `json:"tags"`
	Nested  []map[int]float64 `json:"nested"`
	secret  string
}

func TestValueShapes(t *testing.T) {
	v := Value(sample{
		Name:   "x",
		Skip:   "gone",
		Ratio:  0.5,
		Count:  7,
		When:   time.Date(2024, 5, 6, 13, 0, 0, 0, time.UTC),
		Tags:   map[string]int{"b": 2, "a": 1},
		Nested: []map[int]float64{{2: math.NaN(), 1: math.Inf(1)}},
		secret: "hidden",
	})
	m, ok := v.(*OrderedMap)
	if !ok {
		t.Fatalf("struct should become *OrderedMap, got %T", v)
	}
	if got := strings.Join(m.Keys(), ","); got != "name,ratio,count,missing,when,tags,nested" {
		t.Fatalf("keys = %s", got)
	}
	if c, _ := m.Get("count"); c != int64(7) {
		t.Fatalf("count = %#v", c)
	}
	if r, _ := m.Get("ratio"); r != float64(0.5) {
		t.Fatalf("ratio = %#v", r)
	}
	if w, _ := m.Get("when"); w != "2024-05-06" {
		t.Fatalf("when = %#v", w)
	}
	if mv, _ := m.Get("missing"); mv != nil {
		t.Fatalf("missing = %#v", mv)
	}
	tags, _ := m.Get("tags")
	if strings.Join(tags.(*OrderedMap).Keys(), ",") != "a,b" {
		t.Fatalf("map keys not sorted")
	}
	nested, _ := m.Get("nested")
	inner := nested.([]any)[0].(*OrderedMap)
	for _, k := range inner.Keys() {
		if x, _ := inner.Get(k); x != nil {
			t.Fatalf("non-finite float survived: %#v", x)
		}
	}
}

func TestScalarsAndNil(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{int32(-3), int64(-3)},
		{uint64(math.MaxUint64), float64(math.MaxUint64)},
		{"s", "s"},
		{[]byte("raw"), "raw"},
		{[2]string{"a", "b"}, []any{"a", "b"}},
		{(*int)(nil), nil},
		{time.Time{}, nil},
	}
	for _, tc := range cases {
		got := Value(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Value(%#v) = %#v, want %#v", tc.in, got, tc.want)
		}
		if again := Value(got); !reflect.DeepEqual(again, got) {
			t.Errorf("Value not idempotent for %#v", tc.in)
		}
	}
}

func TestZeroOrderedMap(t *testing.T) {
	var m OrderedMap
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3)
	if got := strings.Join(m.Keys(), ","); got != "b,a" || m.Len() != 2 {
		t.Fatalf("keys = %s", got)
	}
	if v, _ := m.Get("b"); v != 3 {
		t.Fatalf("b = %v", v)
	}
	if v, ok := (&OrderedMap{}).Get("x"); ok || v != nil {
		t.Fatalf("empty map returned %v", v)
	}
}

type grid struct{ names []string }

func (g *grid) Normalize() any {
	out := NewOrderedMap()
	for i, n := range g.names {
		out.Set(n, i)
	}
	return out
}

func TestNormalizerHook(t *testing.T) {
	v := Value(struct {
		G    *grid `json:"g"`
		None *grid `json:"none"`
	}{G: &grid{names: []string{"z", "a"}}})
	m := v.(*OrderedMap)
	g, _ := m.Get("g")
	gm, ok := g.(*OrderedMap)
	if !ok || strings.Join(gm.Keys(), ",") != "z,a" {
		t.Fatalf("g = %#v", g)
	}
	if a, _ := gm.Get("a"); a != int64(1) {
		t.Fatalf("hook output not normalized: %#v", a)
	}
	if n, _ := m.Get("none"); n != nil {
		t.Fatalf("nil normalizer = %#v", n)
	}
	if again := Value(v); !reflect.DeepEqual(again, v) {
		t.Fatal("not idempotent")
	}
}
