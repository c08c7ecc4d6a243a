// Package table provides the loosely typed record model returned by the external table store.
package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Cell holds.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Cell is a single field value. The store never validates its schema, so the same
// column can hold strings, numbers, booleans or lists of any of them.
// The zero value is an absent cell.
type Cell struct {
	kind Kind
	text string // string value, or the decimal text of a number
	b    bool
	list []Cell
}

// Absent returns an empty cell.
func Absent() Cell { return Cell{} }

// String returns a string cell.
func String(s string) Cell { return Cell{kind: KindString, text: s} }

// Number returns a numeric cell.
func Number(f float64) Cell {
	return Cell{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NumberText returns a numeric cell from its decimal text. The text is kept as is
// so amounts convert to decimals without float rounding.
func NumberText(s string) Cell { return Cell{kind: KindNumber, text: s} }

// Bool returns a boolean cell.
func Bool(b bool) Cell { return Cell{kind: KindBool, b: b} }

// List returns a list cell.
func List(items ...Cell) Cell {
	out := make([]Cell, len(items))
	copy(out, items)
	return Cell{kind: KindList, list: out}
}

// Strings is a shorthand for a list of string cells.
func Strings(items ...string) Cell {
	cells := make([]Cell, len(items))
	for i, s := range items {
		cells[i] = String(s)
	}
	return Cell{kind: KindList, list: cells}
}

// Of converts a decoded JSON or YAML value into a Cell.
func Of(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Absent()
	case Cell:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case json.Number:
		return NumberText(x.String())
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return NumberText(strconv.Itoa(x))
	case int64:
		return NumberText(strconv.FormatInt(x, 10))
	case int32:
		return NumberText(strconv.FormatInt(int64(x), 10))
	case uint64:
		return NumberText(strconv.FormatUint(x, 10))
	case []any:
		cells := make([]Cell, len(x))
		for i, item := range x {
			cells[i] = Of(item)
		}
		return Cell{kind: KindList, list: cells}
	case []string:
		return Strings(x...)
	case map[string]any:
		return objectCell(x)
	}
	return String(fmt.Sprint(v))
}

// objectKeys lists, in preference order, the keys used to collapse an object value
// (collaborators, attachments, button/formula results) into a scalar.
var objectKeys = []string{"value", "name", "email", "url", "id"}

func objectCell(m map[string]any) Cell {
	for _, key := range objectKeys {
		if v, ok := m[key]; ok && v != nil {
			return Of(v)
		}
	}
	return Absent()
}

// Kind returns the variant held by the cell.
func (c Cell) Kind() Kind { return c.kind }

// IsAbsent reports whether the cell holds no value.
func (c Cell) IsAbsent() bool { return c.kind == KindAbsent }

// Text returns the string value, or the decimal text of a number.
func (c Cell) Text() string { return c.text }

// BoolValue returns the boolean value of a bool cell.
func (c Cell) BoolValue() bool { return c.b }

// Items returns a copy of the elements of a list cell.
func (c Cell) Items() []Cell {
	if c.kind != KindList {
		return nil
	}
	out := make([]Cell, len(c.list))
	copy(out, c.list)
	return out
}

// Len returns the number of list elements, or 0 for non-list cells.
func (c Cell) Len() int { return len(c.list) }

// Float returns the numeric value of a number cell.
func (c Cell) Float() (float64, bool) {
	if c.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(c.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// GoString renders the cell for test failure messages.
func (c Cell) GoString() string {
	switch c.kind {
	case KindString:
		return strconv.Quote(c.text)
	case KindNumber:
		return c.text
	case KindBool:
		return strconv.FormatBool(c.b)
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range c.list {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(item.GoString())
		}
		buf.WriteByte(']')
		return buf.String()
	}
	return "<absent>"
}

// UnmarshalJSON decodes any JSON value into a Cell.
func (c *Cell) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode cell: %w", err)
	}
	*c = Of(v)
	return nil
}

// MarshalJSON encodes the cell as a plain JSON value.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindString:
		return json.Marshal(c.text)
	case KindNumber:
		if _, err := strconv.ParseFloat(c.text, 64); err != nil {
			return json.Marshal(c.text)
		}
		return []byte(c.text), nil
	case KindBool:
		return json.Marshal(c.b)
	case KindList:
		return json.Marshal(c.list)
	}
	return []byte("null"), nil
}

// Value converts the cell back into a plain Go value for request payloads.
func (c Cell) Value() any {
	switch c.kind {
	case KindString:
		return c.text
	case KindNumber:
		return json.Number(c.text)
	case KindBool:
		return c.b
	case KindList:
		out := make([]any, len(c.list))
		for i, item := range c.list {
			out[i] = item.Value()
		}
		return out
	}
	return nil
}
