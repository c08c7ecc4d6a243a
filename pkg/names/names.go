// Package names builds identifier to display-name maps from loaded tables.
package names

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pigeonworks-llc/section-ledger/pkg/columns"
	"github.com/pigeonworks-llc/section-ledger/pkg/normalize"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// Map resolves record identifiers to display names. A Map is built once per table
// fetch and must be rebuilt, not patched, after a re-fetch.
type Map map[string]string

// Lookup returns the display name for id.
func (m Map) Lookup(id string) (string, bool) {
	name, ok := m[id]
	return name, ok
}

// Len returns the number of mapped identifiers.
func (m Map) Len() int { return len(m) }

// BuildNameMap scans every table, in the collection's order, for a plausible name
// column. Per table the first column that maps at least one new id wins; across
// tables the first id seen wins.
func BuildNameMap(tables *table.Tables) Map {
	out := make(Map)
	for _, name := range tables.Names() {
		rs, _ := tables.Get(name)
		addTable(out, rs)
	}
	return out
}

func addTable(out Map, rs table.RecordSet) {
	if !hasIDs(rs) {
		return
	}

	for _, col := range rankedTextColumns(rs) {
		productive := false
		for _, rec := range rs {
			if rec.ID == "" {
				continue
			}
			if _, seen := out[rec.ID]; seen {
				continue
			}
			value := strings.TrimSpace(normalize.Flatten(rec.Field(col)))
			if value == "" {
				continue
			}
			out[rec.ID] = value
			productive = true
		}
		if productive {
			return
		}
	}
}

func hasIDs(rs table.RecordSet) bool {
	for _, rec := range rs {
		if rec.ID != "" {
			return true
		}
	}
	return false
}

// rankedTextColumns lists columns that hold text or lists in some record, ordered
// by score and then alphabetically.
func rankedTextColumns(rs table.RecordSet) []string {
	var cols []string
	for _, col := range rs.Columns() {
		if strings.EqualFold(col, "id") {
			continue
		}
		if holdsText(rs, col) {
			cols = append(cols, col)
		}
	}

	sort.SliceStable(cols, func(i, j int) bool {
		si, sj := score(cols[i]), score(cols[j])
		if si != sj {
			return si < sj
		}
		return cases.Fold().String(cols[i]) < cases.Fold().String(cols[j])
	})
	return cols
}

func holdsText(rs table.RecordSet, col string) bool {
	for _, rec := range rs {
		switch rec.Field(col).Kind() {
		case table.KindString, table.KindList:
			return true
		}
	}
	return false
}

// score ranks a column name: lower is a better name candidate.
func score(col string) int {
	lower := cases.Fold().String(col)
	switch {
	case lower == "nome" || lower == "name":
		return 0
	case strings.Contains(lower, "nome"):
		return 1
	case strings.Contains(lower, "name"):
		return 2
	case strings.Contains(lower, "email"):
		return 3
	}
	return 4
}

// BuildColumnMap maps ids to the values of the first candidate column that exists
// exactly in rs. It is used for tables with a known name column, such as subjects.
func BuildColumnMap(rs table.RecordSet, candidates []string) Map {
	out := make(Map)
	col := columns.ResolveExact(rs, candidates)
	if col == "" {
		return out
	}

	for _, rec := range rs {
		if rec.ID == "" {
			continue
		}
		value := strings.TrimSpace(normalize.Flatten(rec.Field(col)))
		if value != "" {
			out[rec.ID] = value
		}
	}
	return out
}
