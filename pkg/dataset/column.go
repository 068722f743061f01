package dataset

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the value type stored in a column.
type Kind int

const (
	// Float columns hold float64 values, NaN marks a missing value.
	Float Kind = iota
	// String columns hold text, "" marks a missing value.
	String
	// Time columns hold timestamps, the zero time marks a missing value.
	Time
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "float":
		return Float, nil
	case "string":
		return String, nil
	case "time":
		return Time, nil
	default:
		return 0, fmt.Errorf("dataset: unknown column kind %q", name)
	}
}

// Column is a named, typed vector. Only the slice matching Kind is used.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Times   []time.Time
}

// FloatColumn builds a float column.
func FloatColumn(name string, values ...float64) *Column {
	return &Column{Name: name, Kind: Float, Floats: append([]float64{}, values...)}
}

// StringColumn builds a string column.
func StringColumn(name string, values ...string) *Column {
	return &Column{Name: name, Kind: String, Strings: append([]string{}, values...)}
}

// TimeColumn builds a time column.
func TimeColumn(name string, values ...time.Time) *Column {
	return &Column{Name: name, Kind: Time, Times: append([]time.Time{}, values...)}
}

// EmptyColumn builds a column of kind with n missing values.
func EmptyColumn(name string, kind Kind, n int) *Column {
	col := &Column{Name: name, Kind: kind}
	switch kind {
	case Float:
		col.Floats = make([]float64, n)
		for i := range col.Floats {
			col.Floats[i] = math.NaN()
		}
	case String:
		col.Strings = make([]string, n)
	case Time:
		col.Times = make([]time.Time, n)
	}
	return col
}

// Len returns the number of rows held by the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Float:
		return len(c.Floats)
	case String:
		return len(c.Strings)
	case Time:
		return len(c.Times)
	}
	return 0
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	if c == nil {
		return nil
	}
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Float:
		out.Floats = append([]float64{}, c.Floats...)
	case String:
		out.Strings = append([]string{}, c.Strings...)
	case Time:
		out.Times = append([]time.Time{}, c.Times...)
	}
	return out
}

// Value returns the cell at row i as float64, string or time.Time. Missing
// cells are returned as nil.
func (c *Column) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	switch c.Kind {
	case Float:
		return c.Floats[i]
	case String:
		return c.Strings[i]
	case Time:
		return c.Times[i]
	}
	return nil
}

// IsMissing reports whether row i holds a missing value.
func (c *Column) IsMissing(i int) bool {
	switch c.Kind {
	case Float:
		return math.IsNaN(c.Floats[i])
	case String:
		return c.Strings[i] == ""
	case Time:
		return c.Times[i].IsZero()
	}
	return true
}

// Text renders row i the way it is written to text files.
func (c *Column) Text(i int) string {
	switch c.Kind {
	case Float:
		return FormatFloat(c.Floats[i])
	case String:
		return c.Strings[i]
	case Time:
		return FormatTime(c.Times[i])
	}
	return ""
}

// equalAt reports whether row i of c and row j of other hold the same value.
func (c *Column) equalAt(i int, other *Column, j int) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case Float:
		a, b := c.Floats[i], other.Floats[j]
		if math.IsNaN(a) && math.IsNaN(b) {
			return true
		}
		return a == b
	case String:
		return c.Strings[i] == other.Strings[j]
	case Time:
		return c.Times[i].Equal(other.Times[j])
	}
	return false
}

func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Float:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	case String:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
		}
	case Time:
		out.Times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.Times[i] = c.Times[r]
		}
	}
	return out
}

func (c *Column) appendFrom(other *Column, n int) {
	if other == nil {
		pad := EmptyColumn(c.Name, c.Kind, n)
		other = pad
	}
	switch c.Kind {
	case Float:
		c.Floats = append(c.Floats, other.Floats...)
	case String:
		c.Strings = append(c.Strings, other.Strings...)
	case Time:
		c.Times = append(c.Times, other.Times...)
	}
}

// FormatFloat renders f with the shortest representation that parses back
// to the same value. NaN renders as an empty string.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatTime renders t as a date when it falls on UTC midnight, otherwise as
// RFC 3339 with nanoseconds.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format(DateLayout)
	}
	return u.Format(time.RFC3339Nano)
}
