package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ColumnSchema records the name and kind of one column.
type ColumnSchema struct {
	Name string
	Kind Kind
}

// Schema records the form and column layout of a dataset so it can be read
// back without inferring kinds.
type Schema struct {
	Form    Form
	Columns []ColumnSchema
}

// Schema describes d.
func (d *Dataset) Schema() Schema {
	s := Schema{Form: d.form, Columns: make([]ColumnSchema, len(d.columns))}
	for i, c := range d.columns {
		s.Columns[i] = ColumnSchema{Name: c.Name, Kind: c.Kind}
	}
	return s
}

// Write renders d in the text format matching its form: CSV for tables,
// "key value" lines for key-value datasets and a single line for scalars.
func Write(w io.Writer, d *Dataset) error {
	switch d.form {
	case KeyValue:
		return WriteKeyValue(w, d)
	case Scalar:
		return WriteScalar(w, d)
	default:
		return WriteCSV(w, d)
	}
}

// WriteCSV writes a header row and one record per row.
func WriteCSV(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.Names()); err != nil {
		return fmt.Errorf("dataset: write csv header: %w", err)
	}
	record := make([]string, len(d.columns))
	for i := 0; i < d.rows; i++ {
		for j, c := range d.columns {
			record[j] = c.Text(i)
		}
		if len(record) == 1 && record[0] == "" {
			// a lone empty field would be written as a blank line, which
			// readers skip
			writer.Flush()
			if _, err := io.WriteString(w, "\"\"\n"); err != nil {
				return fmt.Errorf("dataset: write csv row %d: %w", i, err)
			}
			continue
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("dataset: write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteKeyValue writes one "key value" line per column of the first row.
func WriteKeyValue(w io.Writer, d *Dataset) error {
	var b strings.Builder
	for _, c := range d.columns {
		value := ""
		if d.rows > 0 {
			value = c.Text(0)
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteScalar writes the single value of a scalar dataset.
func WriteScalar(w io.Writer, d *Dataset) error {
	if d.rows == 0 || len(d.columns) == 0 {
		return fmt.Errorf("dataset: scalar dataset is empty")
	}
	_, err := io.WriteString(w, d.columns[0].Text(0)+"\n")
	return err
}

// Read parses r according to schema, the inverse of Write.
func Read(r io.Reader, schema Schema) (*Dataset, error) {
	switch schema.Form {
	case KeyValue:
		return ParseKeyValueWithSchema(r, schema)
	case Scalar:
		return parseScalarWithSchema(r, schema)
	default:
		return ParseCSVWithSchema(r, schema)
	}
}

func parseScalarWithSchema(r io.Reader, schema Schema) (*Dataset, error) {
	if len(schema.Columns) != 1 {
		return nil, fmt.Errorf("dataset: scalar schema needs one column, got %d", len(schema.Columns))
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: read scalar: %w", err)
	}
	spec := schema.Columns[0]
	col, err := buildColumn(spec.Name, spec.Kind, []string{strings.TrimSpace(string(raw))})
	if err != nil {
		return nil, err
	}
	return New(Scalar, col)
}
