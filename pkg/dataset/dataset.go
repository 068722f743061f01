// Package dataset holds the tabular value type shared by realizations,
// ensembles and their derived products, plus the per-realization store that
// owns them.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Well-known column names.
const (
	RealColumn = "REAL"
	DateColumn = "DATE"
	ZoneColumn = "ZONE"
	// RegionColumn is used as an alignment key together with DATE and ZONE.
	RegionColumn = "REGION"
	// RealOrigColumn receives a REAL column found in loaded files.
	RealOrigColumn = "REAL_ORIG"
)

// IndexColumns are the columns rows are aligned on when present.
var IndexColumns = []string{DateColumn, ZoneColumn, RegionColumn}

var (
	ErrColumnNotFound = errors.New("dataset: column not found")
	ErrLengthMismatch = errors.New("dataset: column length mismatch")
	ErrKindMismatch   = errors.New("dataset: column kind mismatch")
)

// Form tells how a dataset was produced and how it is written back.
type Form int

const (
	// Table is a CSV-like dataset with any number of rows.
	Table Form = iota
	// KeyValue is a single row holding one column per key.
	KeyValue
	// Scalar is a single row, single column dataset.
	Scalar
)

func (f Form) String() string {
	switch f {
	case Table:
		return "table"
	case KeyValue:
		return "keyvalue"
	case Scalar:
		return "scalar"
	default:
		return fmt.Sprintf("form(%d)", int(f))
	}
}

// ParseForm maps a form name back to a Form.
func ParseForm(name string) (Form, error) {
	switch name {
	case "table":
		return Table, nil
	case "keyvalue":
		return KeyValue, nil
	case "scalar":
		return Scalar, nil
	default:
		return 0, fmt.Errorf("dataset: unknown form %q", name)
	}
}

// ScalarColumn names the single column of a Scalar dataset.
const ScalarColumn = "value"

// Dataset is an ordered set of equal length typed columns.
type Dataset struct {
	form    Form
	columns []*Column
	rows    int
}

// New builds a dataset of form from cols. Columns are used as given, callers
// must not retain them.
func New(form Form, cols ...*Column) (*Dataset, error) {
	ds := &Dataset{form: form}
	seen := make(map[string]struct{}, len(cols))
	for i, col := range cols {
		if col == nil {
			return nil, fmt.Errorf("dataset: column %d is nil", i)
		}
		if _, ok := seen[col.Name]; ok {
			return nil, fmt.Errorf("dataset: duplicate column %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if i == 0 {
			ds.rows = col.Len()
		} else if col.Len() != ds.rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, col.Name, col.Len(), ds.rows)
		}
		ds.columns = append(ds.columns, col)
	}
	return ds, nil
}

// NewTable builds a Table dataset.
func NewTable(cols ...*Column) (*Dataset, error) {
	return New(Table, cols...)
}

// NewScalar builds a Scalar dataset holding v.
func NewScalar(v float64) *Dataset {
	return &Dataset{form: Scalar, columns: []*Column{FloatColumn(ScalarColumn, v)}, rows: 1}
}

// NewStringScalar builds a Scalar dataset holding a text value.
func NewStringScalar(v string) *Dataset {
	return &Dataset{form: Scalar, columns: []*Column{StringColumn(ScalarColumn, v)}, rows: 1}
}

// NewKeyValue builds a KeyValue dataset from values. Numbers become float
// columns, time.Time values time columns, everything else is stored as text.
// Columns are ordered by key.
func NewKeyValue(values map[string]any) *Dataset {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ds := &Dataset{form: KeyValue, rows: 1}
	for _, k := range keys {
		switch v := values[k].(type) {
		case float64:
			ds.columns = append(ds.columns, FloatColumn(k, v))
		case float32:
			ds.columns = append(ds.columns, FloatColumn(k, float64(v)))
		case int:
			ds.columns = append(ds.columns, FloatColumn(k, float64(v)))
		case int64:
			ds.columns = append(ds.columns, FloatColumn(k, float64(v)))
		case time.Time:
			ds.columns = append(ds.columns, TimeColumn(k, v))
		case string:
			ds.columns = append(ds.columns, StringColumn(k, v))
		default:
			ds.columns = append(ds.columns, StringColumn(k, fmt.Sprint(v)))
		}
	}
	return ds
}

// Form returns the dataset form.
func (d *Dataset) Form() Form {
	return d.form
}

// WithForm returns a shallow copy of d with form replaced.
func (d *Dataset) WithForm(form Form) *Dataset {
	out := *d
	out.form = form
	return &out
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return d.rows
}

// Width returns the number of columns.
func (d *Dataset) Width() int {
	return len(d.columns)
}

// Empty reports whether the dataset has no rows or no columns.
func (d *Dataset) Empty() bool {
	return d == nil || d.rows == 0 || len(d.columns) == 0
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The returned columns are owned by d.
func (d *Dataset) Columns() []*Column {
	return d.columns
}

// Column returns the column called name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for _, c := range d.columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Has reports whether d has a column called name.
func (d *Dataset) Has(name string) bool {
	_, ok := d.Column(name)
	return ok
}

// Float returns the float value at row of column name.
func (d *Dataset) Float(name string, row int) (float64, error) {
	col, ok := d.Column(name)
	if !ok {
		return math.NaN(), fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	if col.Kind != Float {
		return math.NaN(), fmt.Errorf("%w: %q is %s", ErrKindMismatch, name, col.Kind)
	}
	if row < 0 || row >= d.rows {
		return math.NaN(), fmt.Errorf("dataset: row %d out of range", row)
	}
	return col.Floats[row], nil
}

// Value returns the first-row value of column name. It is the natural
// accessor for KeyValue and Scalar datasets.
func (d *Dataset) Value(name string) (any, bool) {
	col, ok := d.Column(name)
	if !ok || d.rows == 0 {
		return nil, false
	}
	return col.Value(0), true
}

// NumericNames returns the names of float columns, skipping exclude.
func (d *Dataset) NumericNames(exclude ...string) []string {
	skip := toSet(exclude)
	var names []string
	for _, c := range d.columns {
		if c.Kind != Float {
			continue
		}
		if _, ok := skip[c.Name]; ok {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// Row returns row i as a map keyed by column name. Missing cells are nil.
func (d *Dataset) Row(i int) map[string]any {
	row := make(map[string]any, len(d.columns))
	for _, c := range d.columns {
		row[c.Name] = c.Value(i)
	}
	return row
}

// RawRow returns row i keeping missing markers (NaN, "" and the zero time)
// instead of nil, so comparisons on missing cells stay well typed.
func (d *Dataset) RawRow(i int) map[string]any {
	row := make(map[string]any, len(d.columns))
	for _, c := range d.columns {
		switch c.Kind {
		case Float:
			row[c.Name] = c.Floats[i]
		case String:
			row[c.Name] = c.Strings[i]
		case Time:
			row[c.Name] = c.Times[i]
		}
	}
	return row
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{form: d.form, rows: d.rows, columns: make([]*Column, len(d.columns))}
	for i, c := range d.columns {
		out.columns[i] = c.Clone()
	}
	return out
}

// Select returns a copy holding only names, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	out := &Dataset{form: d.form, rows: d.rows}
	for _, name := range names {
		col, ok := d.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		out.columns = append(out.columns, col.Clone())
	}
	return out, nil
}

// Drop returns a copy without the named columns. Unknown names are ignored.
func (d *Dataset) Drop(names ...string) *Dataset {
	skip := toSet(names)
	out := &Dataset{form: d.form, rows: d.rows}
	for _, c := range d.columns {
		if _, ok := skip[c.Name]; ok {
			continue
		}
		out.columns = append(out.columns, c.Clone())
	}
	if len(out.columns) == 0 && out.form != Table {
		out.rows = 0
	}
	return out
}

// Take returns a copy holding rows in the given order.
func (d *Dataset) Take(rows []int) *Dataset {
	out := &Dataset{form: d.form, rows: len(rows), columns: make([]*Column, len(d.columns))}
	for i, c := range d.columns {
		out.columns[i] = c.take(rows)
	}
	return out
}

// FilterRows returns a copy holding the rows for which keep returns true.
func (d *Dataset) FilterRows(keep func(row int) bool) *Dataset {
	rows := make([]int, 0, d.rows)
	for i := 0; i < d.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return d.Take(rows)
}

// Set replaces the column with the same name or appends col. The column
// length must match the dataset.
func (d *Dataset) Set(col *Column) error {
	if col == nil {
		return fmt.Errorf("dataset: column is nil")
	}
	if len(d.columns) > 0 && col.Len() != d.rows {
		return fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, col.Name, col.Len(), d.rows)
	}
	if len(d.columns) == 0 {
		d.rows = col.Len()
	}
	for i, c := range d.columns {
		if c.Name == col.Name {
			d.columns[i] = col
			return nil
		}
	}
	d.columns = append(d.columns, col)
	return nil
}

// Prepend inserts col as the first column, replacing any column of the same
// name.
func (d *Dataset) Prepend(col *Column) error {
	if err := d.Set(col); err != nil {
		return err
	}
	idx := 0
	for i, c := range d.columns {
		if c.Name == col.Name {
			idx = i
			break
		}
	}
	moved := d.columns[idx]
	copy(d.columns[1:idx+1], d.columns[:idx])
	d.columns[0] = moved
	return nil
}

// Rename renames column from to to.
func (d *Dataset) Rename(from, to string) error {
	if from == to {
		return nil
	}
	if d.Has(to) {
		return fmt.Errorf("dataset: column %q already exists", to)
	}
	col, ok := d.Column(from)
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, from)
	}
	col.Name = to
	return nil
}

// Equal reports whether both datasets have the same form, columns, kinds and
// values. NaN equals NaN.
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.form != other.form || d.rows != other.rows || len(d.columns) != len(other.columns) {
		return false
	}
	for i, c := range d.columns {
		o := other.columns[i]
		if c.Name != o.Name || c.Kind != o.Kind {
			return false
		}
		for r := 0; r < d.rows; r++ {
			if !c.equalAt(r, o, r) {
				return false
			}
		}
	}
	return true
}

// ColumnsEqualAt reports whether column a at rows ra and column b at rows rb
// hold identical values.
func ColumnsEqualAt(a *Column, ra []int, b *Column, rb []int) bool {
	if a.Kind != b.Kind || len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if !a.equalAt(ra[i], b, rb[i]) {
			return false
		}
	}
	return true
}

// SortBy sorts rows by the given columns, ascending, keeping ties stable.
func (d *Dataset) SortBy(names ...string) (*Dataset, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		col, ok := d.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		cols = append(cols, col)
	}
	rows := make([]int, d.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, col := range cols {
			if c := CompareAt(col, rows[i], rows[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return d.Take(rows), nil
}

// CompareAt orders two cells of col. Missing values sort first.
func CompareAt(col *Column, i, j int) int {
	mi, mj := col.IsMissing(i), col.IsMissing(j)
	switch {
	case mi && mj:
		return 0
	case mi:
		return -1
	case mj:
		return 1
	}
	switch col.Kind {
	case Float:
		return compareOrdered(col.Floats[i], col.Floats[j])
	case String:
		return compareOrdered(col.Strings[i], col.Strings[j])
	case Time:
		return col.Times[i].Compare(col.Times[j])
	}
	return 0
}

func compareOrdered[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Concat stacks datasets vertically. The result holds the union of columns in
// first-seen order, cells missing from a part are filled with missing values.
// A column name used with two kinds is an error.
func Concat(parts ...*Dataset) (*Dataset, error) {
	out := &Dataset{form: Table}
	kinds := map[string]Kind{}
	var order []string
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, c := range p.columns {
			k, ok := kinds[c.Name]
			if !ok {
				kinds[c.Name] = c.Kind
				order = append(order, c.Name)
				continue
			}
			if k != c.Kind {
				return nil, fmt.Errorf("%w: %q is %s and %s", ErrKindMismatch, c.Name, k, c.Kind)
			}
		}
	}
	for _, name := range order {
		out.columns = append(out.columns, &Column{Name: name, Kind: kinds[name]})
	}
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, col := range out.columns {
			src, _ := p.Column(col.Name)
			col.appendFrom(src, p.rows)
		}
		out.rows += p.rows
	}
	return out, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
