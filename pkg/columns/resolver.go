// Package columns locates semantically intended columns in a schema that is never validated.
package columns

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// Resolve returns the column of rs that best matches candidates, or "" when none does.
//
// Exact matches (case and whitespace insensitive) are tried for every candidate
// before any substring match, so an exact hit for a later candidate beats a fuzzy
// hit for an earlier one.
func Resolve(rs table.RecordSet, candidates []string) string {
	if rs.Empty() {
		return ""
	}
	return ResolveColumns(rs.Columns(), candidates)
}

// ResolveColumns is Resolve over an explicit column list.
func ResolveColumns(columns, candidates []string) string {
	if len(columns) == 0 || len(candidates) == 0 {
		return ""
	}

	if col := ResolveExactColumns(columns, candidates); col != "" {
		return col
	}

	for _, candidate := range candidates {
		k := key(candidate)
		if k == "" {
			continue
		}
		for _, col := range columns {
			if strings.Contains(key(col), k) {
				return col
			}
		}
	}
	return ""
}

// ResolveExact runs only the exact pass.
func ResolveExact(rs table.RecordSet, candidates []string) string {
	if rs.Empty() {
		return ""
	}
	return ResolveExactColumns(rs.Columns(), candidates)
}

// ResolveExactColumns runs only the exact pass over an explicit column list.
func ResolveExactColumns(columns, candidates []string) string {
	normalized := make(map[string]string, len(columns))
	for _, col := range columns {
		k := key(col)
		if _, dup := normalized[k]; !dup {
			normalized[k] = col
		}
	}

	for _, candidate := range candidates {
		if col, ok := normalized[key(candidate)]; ok {
			return col
		}
	}
	return ""
}

// FindByKeywords returns the first column whose name contains every keyword of a
// group, trying groups in order. Accents and case are ignored.
func FindByKeywords(columns []string, groups [][]string) string {
	for _, group := range groups {
		var tokens []string
		for _, kw := range group {
			if t := stripAccents(kw); t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) == 0 {
			continue
		}

		for _, col := range columns {
			name := stripAccents(col)
			matched := true
			for _, t := range tokens {
				if !strings.Contains(name, t) {
					matched = false
					break
				}
			}
			if matched {
				return col
			}
		}
	}
	return ""
}

// key folds case and collapses whitespace runs.
func key(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}
