package message

import (
	"testing"
)

func TestHeaderMap_AddGetValues(t *testing.T) {
	var h HeaderMap
	h.Add("X-Vendor", "a")
	h.Add("Cache-Control", "max-age=60")
	h.Add("x-vendor", "b")

	if got, ok := h.Get("X-VENDOR"); !ok || got != "a" {
		t.Errorf("Get(X-VENDOR) = %q, %v; want a, true", got, ok)
	}
	if got := h.Values("x-Vendor"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Values(x-Vendor) = %v, want [a b]", got)
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}

	// Insertion order and verbatim names survive.
	var names []string
	for name := range h.All() {
		names = append(names, name)
	}
	want := []string{"X-Vendor", "Cache-Control", "x-vendor"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestHeaderMap_Set(t *testing.T) {
	h := NewHeaderMap(
		Field{Name: "A", Value: "1"},
		Field{Name: "B", Value: "2"},
		Field{Name: "a", Value: "3"},
		Field{Name: "C", Value: "4"},
	)

	h.Set("A", "x")

	fields := h.Fields()
	want := []Field{{Name: "A", Value: "x"}, {Name: "B", Value: "2"}, {Name: "C", Value: "4"}}
	if len(fields) != len(want) {
		t.Fatalf("Fields() = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %v, want %v", i, fields[i], want[i])
		}
	}
	if got, _ := h.Get("c"); got != "4" {
		t.Errorf("index not rebuilt after Set: Get(c) = %q", got)
	}

	h.Set("D", "5")
	if got, _ := h.Get("d"); got != "5" || h.Len() != 4 {
		t.Errorf("Set on absent name should append, Len=%d", h.Len())
	}
}

func TestHeaderMap_Del(t *testing.T) {
	h := NewHeaderMap(Field{Name: "A", Value: "1"}, Field{Name: "B", Value: "2"}, Field{Name: "a", Value: "3"})

	h.Del("a")

	if h.Has("A") {
		t.Error("Has(A) after Del(a) = true")
	}
	if got, ok := h.Get("b"); !ok || got != "2" {
		t.Errorf("Get(b) = %q, %v", got, ok)
	}
	h.Del("missing")
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
}

func TestHeaderMap_CloneIsIndependent(t *testing.T) {
	h := NewHeaderMap(Field{Name: "A", Value: "1"})
	c := h.Clone()
	c.Add("B", "2")

	if h.Has("B") {
		t.Error("Clone shares storage with original")
	}
	if !h.Equal(NewHeaderMap(Field{Name: "A", Value: "1"})) {
		t.Error("Equal() = false for identical maps")
	}
	if h.Equal(NewHeaderMap(Field{Name: "a", Value: "1"})) {
		t.Error("Equal() compares names verbatim")
	}
}

func TestHeaderMap_NilAndZero(t *testing.T) {
	var nilMap *HeaderMap
	if _, ok := nilMap.Get("x"); ok {
		t.Error("Get on nil map reported presence")
	}
	if nilMap.Len() != 0 || nilMap.Values("x") != nil || nilMap.Fields() != nil {
		t.Error("nil map should behave as empty")
	}

	var zero HeaderMap
	if !zero.Equal(nilMap) {
		t.Error("zero map should equal nil map")
	}
}
