package dynamodel

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Record is one row: column names mapped to values in column order.
type Record struct {
	m *linkedhashmap.Map
	// linkedhashmap reports nil values as missing, so presence is tracked here.
	keys map[string]struct{}
}

func NewRecord() *Record {
	return &Record{m: linkedhashmap.New(), keys: make(map[string]struct{})}
}

// RecordOf builds a record from name/value pairs.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		var v any
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		r.Set(fmt.Sprint(kv[i]), v)
	}
	return r
}

// Set stores value under name. An existing name keeps its position.
func (r *Record) Set(name string, value any) *Record {
	r.m.Put(name, value)
	r.keys[name] = struct{}{}
	return r
}

// Get returns the value stored under the exact name.
func (r *Record) Get(name string) (any, bool) {
	if _, ok := r.keys[name]; !ok {
		return nil, false
	}
	v, _ := r.m.Get(name)
	return v, true
}

// Value is Get without the presence flag.
func (r *Record) Value(name string) any {
	v, _ := r.m.Get(name)
	return v
}

// Lookup finds name ignoring case and returns the stored key with its value.
func (r *Record) Lookup(name string) (string, any, bool) {
	if v, ok := r.Get(name); ok {
		return name, v, true
	}
	it := r.m.Iterator()
	for it.Next() {
		if key := it.Key().(string); strings.EqualFold(key, name) {
			return key, it.Value(), true
		}
	}
	return "", nil, false
}

// At returns the i-th value.
func (r *Record) At(i int) any {
	values := r.m.Values()
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func (r *Record) Remove(name string) {
	r.m.Remove(name)
	delete(r.keys, name)
}

func (r *Record) Len() int {
	return r.m.Size()
}

func (r *Record) Columns() []string {
	keys := r.m.Keys()
	columns := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = k.(string)
	}
	return columns
}

func (r *Record) Values() []any {
	return r.m.Values()
}

// Map copies the record into a plain map, losing the order.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.m.Size())
	it := r.m.Iterator()
	for it.Next() {
		out[it.Key().(string)] = it.Value()
	}
	return out
}

// MarshalJSON writes the record as a JSON object in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.m.ToJSON()
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	it := r.m.Iterator()
	first := true
	for it.Next() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%v: %v", it.Key(), it.Value())
	}
	b.WriteByte('}')
	return b.String()
}
