package message

import (
	"iter"
	"strings"

	wire "github.com/joshuafuller/ssdp/internal/message"
)

// Field is one header line. Name keeps the casing it was given.
type Field = wire.Field

// HeaderMap is an ordered multimap of header lines with ASCII case-insensitive
// lookup.
//
// Insertion order of lines is preserved for serialization, a name may repeat
// and every value is retained. Lookup goes through an index keyed by the
// lower-cased name, so Get/Values/Has do not scan the line list.
//
// The zero value is an empty map ready to use. A HeaderMap must not be copied
// after first use; use Clone.
type HeaderMap struct {
	fields []Field
	index  map[string][]int
}

// NewHeaderMap returns a map holding fields in order.
func NewHeaderMap(fields ...Field) *HeaderMap {
	h := &HeaderMap{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

func key(name string) string {
	return strings.ToLower(name)
}

// Add appends a line, keeping any existing values for name.
func (h *HeaderMap) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	k := key(name)
	h.index[k] = append(h.index[k], len(h.fields))
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every value of name with value. The line keeps the position of
// the first existing occurrence; if name is absent it is appended.
func (h *HeaderMap) Set(name, value string) {
	idx := h.index[key(name)]
	if len(idx) == 0 {
		h.Add(name, value)
		return
	}
	h.fields[idx[0]] = Field{Name: name, Value: value}
	if len(idx) > 1 {
		h.remove(func(i int, _ Field) bool { return i != idx[0] && key(h.fields[i].Name) == key(name) })
	}
}

// Get returns the first value of name and whether it is present.
func (h *HeaderMap) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	idx := h.index[key(name)]
	if len(idx) == 0 {
		return "", false
	}
	return h.fields[idx[0]].Value, true
}

// Values returns every value of name in insertion order.
func (h *HeaderMap) Values(name string) []string {
	if h == nil {
		return nil
	}
	idx := h.index[key(name)]
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = h.fields[j].Value
	}
	return out
}

// Has reports whether name is present.
func (h *HeaderMap) Has(name string) bool {
	if h == nil {
		return false
	}
	return len(h.index[key(name)]) > 0
}

// Del removes every line named name.
func (h *HeaderMap) Del(name string) {
	if !h.Has(name) {
		return
	}
	k := key(name)
	h.remove(func(_ int, f Field) bool { return key(f.Name) == k })
}

func (h *HeaderMap) remove(drop func(int, Field) bool) {
	kept := h.fields[:0:0]
	for i, f := range h.fields {
		if !drop(i, f) {
			kept = append(kept, f)
		}
	}
	h.fields = nil
	h.index = nil
	for _, f := range kept {
		h.Add(f.Name, f.Value)
	}
}

// Len returns the number of lines.
func (h *HeaderMap) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// All iterates lines in insertion order.
func (h *HeaderMap) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if h == nil {
			return
		}
		for _, f := range h.fields {
			if !yield(f.Name, f.Value) {
				return
			}
		}
	}
}

// Fields returns a copy of the lines in insertion order.
func (h *HeaderMap) Fields() []Field {
	if h == nil || len(h.fields) == 0 {
		return nil
	}
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns an independent copy.
func (h *HeaderMap) Clone() HeaderMap {
	var c HeaderMap
	if h == nil {
		return c
	}
	for _, f := range h.fields {
		c.Add(f.Name, f.Value)
	}
	return c
}

// Equal reports whether both maps hold the same lines in the same order.
// Names are compared verbatim.
func (h *HeaderMap) Equal(o *HeaderMap) bool {
	if h.Len() != o.Len() {
		return false
	}
	for i := 0; i < h.Len(); i++ {
		if h.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}
