// Package normalize coerces loosely typed cells into strings, booleans, amounts and dates.
//
// Every function is total: malformed input degrades to an empty string, false, or a
// missing value so a reconciliation pass can keep going over a whole table.
package normalize

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// DefaultSeparator joins flattened list elements.
const DefaultSeparator = ", "

// truthy is the vocabulary of strings that mean a ticked checkbox.
var truthy = map[string]struct{}{
	"true":    {},
	"1":       {},
	"yes":     {},
	"y":       {},
	"sim":     {},
	"checked": {},
	"marcado": {},
	"✅":       {},
	"✔":       {},
	"☑":       {},
}

// Fold returns s case-folded and trimmed, for case-insensitive comparisons.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// FlattenList renders a cell as text. List elements are flattened recursively and
// joined with sep; empty elements are skipped.
func FlattenList(c table.Cell, sep string) string {
	switch c.Kind() {
	case table.KindString, table.KindNumber:
		return c.Text()
	case table.KindBool:
		return strconv.FormatBool(c.BoolValue())
	case table.KindList:
		parts := make([]string, 0, c.Len())
		for _, item := range c.Items() {
			if s := FlattenList(item, sep); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, sep)
	}
	return ""
}

// Flatten is FlattenList with the default separator.
func Flatten(c table.Cell) string {
	return FlattenList(c, DefaultSeparator)
}

// MapList replaces each element of a cell (or the scalar itself) by its display
// name when names has it, keeping the raw text otherwise.
func MapList(c table.Cell, names map[string]string, sep string) string {
	if c.Kind() != table.KindList {
		raw := FlattenList(c, sep)
		if name, ok := names[raw]; ok {
			return name
		}
		return raw
	}

	parts := make([]string, 0, c.Len())
	for _, item := range c.Items() {
		if s := MapList(item, names, sep); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

// FirstScalar returns the first non-absent element of a list, or the cell itself.
func FirstScalar(c table.Cell) table.Cell {
	if c.Kind() != table.KindList {
		return c
	}
	for _, item := range c.Items() {
		if first := FirstScalar(item); !first.IsAbsent() {
			return first
		}
	}
	return table.Absent()
}

// CoerceBoolean interprets a checkbox-like cell. Lists are true when any element
// is, because rollups arrive as lists of booleans.
func CoerceBoolean(c table.Cell) bool {
	switch c.Kind() {
	case table.KindBool:
		return c.BoolValue()
	case table.KindNumber:
		f, ok := c.Float()
		return ok && f != 0
	case table.KindList:
		for _, item := range c.Items() {
			if CoerceBoolean(item) {
				return true
			}
		}
		return false
	case table.KindString:
		key := Fold(strings.TrimRight(strings.TrimSpace(c.Text()), "\uFE0F"))
		_, ok := truthy[key]
		return ok
	}
	return false
}

// CoerceAmount parses a monetary cell. Currency symbols and whitespace are
// stripped; when both ',' and '.' appear, the last one is the decimal separator.
// A list is parsed from its first non-null element only.
func CoerceAmount(c table.Cell) (decimal.Decimal, bool) {
	switch c.Kind() {
	case table.KindNumber:
		d, err := decimal.NewFromString(c.Text())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case table.KindString:
		return parseAmount(c.Text())
	case table.KindList:
		for _, item := range c.Items() {
			if item.Kind() != table.KindAbsent {
				return CoerceAmount(item)
			}
		}
	}
	return decimal.Zero, false
}

func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// CoerceDate parses a date cell into a UTC calendar date. Lists use their first
// element. Partial dates are rejected.
func CoerceDate(c table.Cell) (time.Time, bool) {
	if c.Kind() == table.KindList {
		items := c.Items()
		if len(items) == 0 {
			return time.Time{}, false
		}
		return CoerceDate(items[0])
	}
	if c.Kind() != table.KindString {
		return time.Time{}, false
	}

	s := strings.TrimSpace(c.Text())
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
