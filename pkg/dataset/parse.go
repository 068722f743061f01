package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used for dates without a time of day.
const DateLayout = "2006-01-02"

var timeLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ErrUnknownFormat is returned when no parser handles a format.
var ErrUnknownFormat = errors.New("dataset: unknown format")

// Format names a source file format understood by a Parser.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatText   Format = "txt"
	FormatScalar Format = "scalar"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatText, "text", "keyvalue":
		return FormatText, nil
	case FormatScalar:
		return FormatScalar, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return FormatCSV, true
	case ".txt":
		return FormatText, true
	}
	return "", false
}

// Parser turns a source file into a dataset. The caller chooses the key.
type Parser interface {
	Parse(format Format, r io.Reader) (*Dataset, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(Format, io.Reader) (*Dataset, error)

// Parse implements Parser.
func (f ParserFunc) Parse(format Format, r io.Reader) (*Dataset, error) {
	if f == nil {
		return nil, fmt.Errorf("dataset: parser is nil")
	}
	return f(format, r)
}

// DefaultParser handles csv, txt and scalar files.
func DefaultParser() Parser {
	return ParserFunc(func(format Format, r io.Reader) (*Dataset, error) {
		switch format {
		case FormatCSV:
			return ParseCSV(r)
		case FormatText:
			return ParseKeyValue(r)
		case FormatScalar:
			return ParseScalar(r)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	})
}

// ParseCSV reads a header row followed by records. Column kinds are inferred:
// a column whose non-empty cells all parse as numbers is Float, one whose
// cells all parse as dates is Time, anything else is String.
func ParseCSV(r io.Reader) (*Dataset, error) {
	return parseCSV(r, nil)
}

// ParseCSVWithSchema reads CSV using the column kinds recorded in schema
// instead of inferring them.
func ParseCSVWithSchema(r io.Reader, schema Schema) (*Dataset, error) {
	kinds := make(map[string]Kind, len(schema.Columns))
	for _, c := range schema.Columns {
		kinds[c.Name] = c.Kind
	}
	ds, err := parseCSV(r, kinds)
	if err != nil {
		return nil, err
	}
	return ds.WithForm(schema.Form), nil
}

func parseCSV(r io.Reader, kinds map[string]Kind) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: csv has no header")
	}
	header := records[0]
	body := records[1:]
	cols := make([]*Column, len(header))
	for j, name := range header {
		cells := make([]string, len(body))
		for i, rec := range body {
			if j < len(rec) {
				cells[i] = strings.TrimSpace(rec[j])
			}
		}
		name = strings.TrimSpace(name)
		kind, ok := kinds[name]
		if !ok {
			kind = inferKind(name, cells)
		}
		col, err := buildColumn(name, kind, cells)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	return New(Table, cols...)
}

func inferKind(name string, cells []string) Kind {
	numeric, dated, seen := true, true, false
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		seen = true
		if numeric {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
			}
		}
		if dated {
			if _, err := ParseTime(cell); err != nil {
				dated = false
			}
		}
		if !numeric && !dated {
			return String
		}
	}
	switch {
	case !seen && name == DateColumn:
		return Time
	case !seen:
		return Float
	case name == DateColumn && dated:
		return Time
	case numeric:
		return Float
	case dated:
		return Time
	}
	return String
}

func buildColumn(name string, kind Kind, cells []string) (*Column, error) {
	col := EmptyColumn(name, kind, len(cells))
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		switch kind {
		case Float:
			f, err := parseFloatCell(cell)
			if err != nil {
				return nil, fmt.Errorf("dataset: column %q row %d: %w", name, i, err)
			}
			col.Floats[i] = f
		case String:
			col.Strings[i] = cell
		case Time:
			t, err := ParseTime(cell)
			if err != nil {
				return nil, fmt.Errorf("dataset: column %q row %d: %w", name, i, err)
			}
			col.Times[i] = t
		}
	}
	return col, nil
}

func parseFloatCell(cell string) (float64, error) {
	if strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// ParseTime parses the date and timestamp layouts used in text files. Values
// without a zone are taken as UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("dataset: cannot parse %q as time", value)
}

// ParseKeyValue reads "key value" lines. The first whitespace separated
// field is the key, the remainder the value. Numeric values become float
// columns, others string columns. Blank lines are skipped, a repeated key
// keeps the last value.
func ParseKeyValue(r io.Reader) (*Dataset, error) {
	values, err := readKeyValue(r)
	if err != nil {
		return nil, err
	}
	converted := make(map[string]any, len(values))
	for k, v := range values {
		converted[k] = ParseNumber(v)
	}
	return NewKeyValue(converted), nil
}

// ParseKeyValueWithSchema reads "key value" lines using the recorded kinds.
func ParseKeyValueWithSchema(r io.Reader, schema Schema) (*Dataset, error) {
	values, err := readKeyValue(r)
	if err != nil {
		return nil, err
	}
	cols := make([]*Column, 0, len(schema.Columns))
	for _, spec := range schema.Columns {
		raw, ok := values[spec.Name]
		if !ok {
			return nil, fmt.Errorf("dataset: key %q missing", spec.Name)
		}
		col, err := buildColumn(spec.Name, spec.Kind, []string{raw})
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return New(schema.Form, cols...)
}

func readKeyValue(r io.Reader) (map[string]string, error) {
	values := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		key := fields[0]
		value := strings.TrimSpace(strings.TrimPrefix(line, key))
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read key-value: %w", err)
	}
	return values, nil
}

// ParseScalar reads a single value. Numbers become a float scalar, anything
// else a text scalar.
func ParseScalar(r io.Reader) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: read scalar: %w", err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return nil, fmt.Errorf("dataset: scalar file is empty")
	}
	switch v := ParseNumber(value).(type) {
	case float64:
		return NewScalar(v), nil
	default:
		return NewStringScalar(value), nil
	}
}

// ParseNumber returns value as float64 when it parses as a number and the
// original string otherwise.
func ParseNumber(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
