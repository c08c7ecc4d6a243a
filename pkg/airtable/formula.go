package airtable

import (
	"fmt"
	"strings"
)

// Quote renders value as a single-quoted formula string literal.
func Quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}

// EqualsIgnoreCase builds a predicate matching records where any of fields equals
// value, ignoring case.
func EqualsIgnoreCase(fields []string, value string) string {
	lowered := Quote(strings.ToLower(value))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, fmt.Sprintf("LOWER({%s})=%s", f, lowered))
	}

	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	}
	return "OR(" + strings.Join(terms, ",") + ")"
}
