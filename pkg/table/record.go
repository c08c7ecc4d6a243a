package table

import (
	"sort"
	"time"
)

// Record is one upstream row: an opaque identifier plus its field map.
type Record struct {
	ID          string          `json:"id"`
	CreatedTime time.Time       `json:"createdTime,omitempty"`
	Fields      map[string]Cell `json:"fields"`
}

// Field returns the named cell, or an absent cell when the record lacks it.
func (r Record) Field(name string) Cell {
	if r.Fields == nil {
		return Absent()
	}
	return r.Fields[name]
}

// RecordSet is the content of one fetched table.
type RecordSet []Record

// Empty reports whether the set has no records.
func (rs RecordSet) Empty() bool { return len(rs) == 0 }

// Columns returns the union of field names across all records, sorted.
// The store omits empty fields per record, so a column exists when any record has it.
func (rs RecordSet) Columns() []string {
	seen := make(map[string]struct{})
	for _, rec := range rs {
		for name := range rec.Fields {
			seen[name] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// HasColumn reports whether any record carries the named field.
func (rs RecordSet) HasColumn(name string) bool {
	for _, rec := range rs {
		if _, ok := rec.Fields[name]; ok {
			return true
		}
	}
	return false
}

// Filter returns the records for which keep returns true.
func (rs RecordSet) Filter(keep func(Record) bool) RecordSet {
	var out RecordSet
	for _, rec := range rs {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Tables is an ordered collection of fetched record sets keyed by table name.
// Iteration follows insertion order, which is the fetch order.
type Tables struct {
	order []string
	sets  map[string]RecordSet
}

// NewTables returns an empty collection.
func NewTables() *Tables {
	return &Tables{sets: make(map[string]RecordSet)}
}

// Put stores a record set. Replacing an existing table keeps its position.
func (t *Tables) Put(name string, rs RecordSet) {
	if t.sets == nil {
		t.sets = make(map[string]RecordSet)
	}
	if _, ok := t.sets[name]; !ok {
		t.order = append(t.order, name)
	}
	t.sets[name] = rs
}

// Get returns the named record set.
func (t *Tables) Get(name string) (RecordSet, bool) {
	if t == nil {
		return nil, false
	}
	rs, ok := t.sets[name]
	return rs, ok
}

// Names returns table names in insertion order.
func (t *Tables) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of tables.
func (t *Tables) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Only returns a new collection holding just the named tables that exist.
func (t *Tables) Only(names ...string) *Tables {
	out := NewTables()
	for _, name := range names {
		if rs, ok := t.Get(name); ok {
			out.Put(name, rs)
		}
	}
	return out
}
