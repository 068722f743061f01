package ensemble

import (
	"errors"
	"testing"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

func newDiskFixture(t *testing.T, opts ...Option) *DiskRealization {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "parameters.txt", "FWL 1700\nMULTZ 0.5\nMODE high\n")
	writeFile(t, root, "share/results/volumes/geogrid.csv", "ZONE,REAL,STOIIP\nUpper,0,100\nLower,0,200\n")
	writeFile(t, root, "share/results/tables/unsmry--monthly.csv",
		"DATE,FOPT,FOPR\n2020-01-01,0,10\n2020-02-01,310,10\n2020-03-01,600,10\n")
	writeFile(t, root, "npv.txt", "30\n")
	return NewDiskRealization(root, 3, opts...)
}

func TestDiskRealizationLoadAndGet(t *testing.T) {
	var captured Diagnostics
	r := newDiskFixture(t, WithDiagnosticLogger(DiagnosticLoggerFunc(func(d Diagnostic) {
		captured = append(captured, d)
	})))

	if err := r.Load(dataset.FormatText, "parameters.txt"); err != nil {
		t.Fatalf("load parameters: %v", err)
	}
	if err := r.Load(dataset.FormatCSV, "share/results/volumes/geogrid.csv"); err != nil {
		t.Fatalf("load geogrid: %v", err)
	}
	if err := r.Load(dataset.FormatScalar, "npv.txt"); err != nil {
		t.Fatalf("load npv: %v", err)
	}

	params, err := r.Get("parameters")
	if err != nil {
		t.Fatalf("get parameters: %v", err)
	}
	if params.Form() != dataset.KeyValue {
		t.Fatalf("expected key-value form, got %s", params.Form())
	}
	if v, _ := params.Value("FWL"); v != 1700.0 {
		t.Fatalf("expected FWL 1700, got %v", v)
	}
	if v, _ := params.Value("MODE"); v != "high" {
		t.Fatalf("expected MODE high, got %v", v)
	}

	grid, err := r.Get("geogrid.csv")
	if err != nil {
		t.Fatalf("get geogrid: %v", err)
	}
	if grid.Has(dataset.RealColumn) || !grid.Has(dataset.RealOrigColumn) {
		t.Fatalf("expected REAL renamed to REAL_ORIG, got %v", grid.Names())
	}
	if len(captured) != 1 || captured[0].Column != dataset.RealColumn {
		t.Fatalf("expected one rename diagnostic, got %+v", captured)
	}

	npv, err := r.Get("npv.txt")
	if err != nil {
		t.Fatalf("get npv: %v", err)
	}
	if v, _ := npv.Value(dataset.ScalarColumn); v != 30.0 {
		t.Fatalf("expected npv 30, got %v", v)
	}
}

func TestDiskRealizationReadOnceDoesNotInternalize(t *testing.T) {
	r := newDiskFixture(t)

	ds, err := r.Get("share/results/tables/unsmry--monthly.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", ds.Len())
	}
	if len(r.Keys()) != 0 {
		t.Fatalf("read-once path must not store data, keys=%v", r.Keys())
	}

	_, err = r.Get("share/results/tables/missing.csv")
	if !errors.Is(err, ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound, got %v", err)
	}
	if err := r.Load(dataset.FormatCSV, "nope.csv"); !errors.Is(err, ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound on load, got %v", err)
	}
}

func TestDiskRealizationGetColumns(t *testing.T) {
	r := newDiskFixture(t)
	if err := r.Load(dataset.FormatCSV, "share/results/tables/unsmry--monthly.csv"); err != nil {
		t.Fatalf("load: %v", err)
	}
	ds, err := r.Get("unsmry--monthly", GetColumns("FOPR"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	names := ds.Names()
	if len(names) != 2 || names[0] != dataset.DateColumn || names[1] != "FOPR" {
		t.Fatalf("expected DATE and FOPR, got %v", names)
	}
}

func TestDetachedRealization(t *testing.T) {
	r := NewDetachedRealization(4, "virtual")
	if err := r.Append("npv.txt", dataset.NewScalar(1), false); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Append("npv.txt", dataset.NewScalar(2), false); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}
	if err := r.Append("npv.txt", dataset.NewScalar(2), true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	ds, err := r.Get("npv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := ds.Value(dataset.ScalarColumn); v != 2.0 {
		t.Fatalf("expected overwritten value 2, got %v", v)
	}
	if _, err := r.Get("other.csv"); !errors.Is(err, ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound, got %v", err)
	}
	if err := r.Load(dataset.FormatCSV, "x.csv"); !errors.Is(err, ErrDetachedLoad) {
		t.Fatalf("expected ErrDetachedLoad, got %v", err)
	}
}

func TestDetachedRealizationDoesNotAlias(t *testing.T) {
	source := mustTable(t, dataset.FloatColumn("FOPT", 1, 2))
	r := NewDetachedRealization(0, "")
	r.Put("t.csv", source)
	source.Columns()[0].Floats[0] = 99

	got, err := r.Get("t.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Columns()[0].Floats[1] = 42

	again, _ := r.Get("t.csv")
	assertFloats(t, floats(t, again, "FOPT"), []float64{1, 2})
}

func TestRealizationDrop(t *testing.T) {
	table := func() *dataset.Dataset {
		return mustTable(t,
			dataset.TimeColumn("DATE", day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1)),
			dataset.FloatColumn("FOPT", 100, 200, 300),
			dataset.StringColumn("WELL", "OP_1", "OP_2", "OP_1"),
		)
	}
	params := dataset.NewKeyValue(map[string]any{"FWL": 1700.0, "MULTZ": 0.5})

	cases := []struct {
		name   string
		key    string
		spec   DropSpec
		check  func(t *testing.T, r *DetachedRealization)
		expect error
	}{
		{
			name: "whole dataset",
			key:  "tables/summary.csv",
			check: func(t *testing.T, r *DetachedRealization) {
				if _, err := r.Get("tables/summary.csv"); !errors.Is(err, ErrDataNotFound) {
					t.Fatalf("expected dataset removed, got %v", err)
				}
			},
		},
		{
			name: "columns",
			key:  "summary.csv",
			spec: DropSpec{Columns: []string{"WELL"}},
			check: func(t *testing.T, r *DetachedRealization) {
				ds, _ := r.Get("summary.csv")
				if ds.Has("WELL") || !ds.Has("FOPT") {
					t.Fatalf("unexpected columns %v", ds.Names())
				}
			},
		},
		{
			name: "row contains",
			key:  "summary.csv",
			spec: DropSpec{RowContains: "OP_1"},
			check: func(t *testing.T, r *DetachedRealization) {
				ds, _ := r.Get("summary.csv")
				assertFloats(t, floats(t, ds, "FOPT"), []float64{200})
			},
		},
		{
			name: "where",
			key:  "summary.csv",
			spec: DropSpec{Where: "FOPT > 150"},
			check: func(t *testing.T, r *DetachedRealization) {
				ds, _ := r.Get("summary.csv")
				assertFloats(t, floats(t, ds, "FOPT"), []float64{100})
			},
		},
		{
			name: "keys",
			key:  "parameters.txt",
			spec: DropSpec{Keys: []string{"MULTZ"}},
			check: func(t *testing.T, r *DetachedRealization) {
				ds, _ := r.Get("parameters.txt")
				if ds.Has("MULTZ") || !ds.Has("FWL") {
					t.Fatalf("unexpected keys %v", ds.Names())
				}
			},
		},
		{
			name:   "absent",
			key:    "missing.csv",
			expect: ErrDataNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := detached(0, "", map[string]*dataset.Dataset{
				"tables/summary.csv": table(),
				"parameters.txt":     params,
			})
			err := r.Drop(tc.key, tc.spec)
			if tc.expect != nil {
				if !errors.Is(err, tc.expect) {
					t.Fatalf("expected %v, got %v", tc.expect, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("drop: %v", err)
			}
			tc.check(t, r)
		})
	}
}

func TestRealizationFilter(t *testing.T) {
	r := detached(1, "", map[string]*dataset.Dataset{
		"parameters.txt": dataset.NewKeyValue(map[string]any{"FWL": 1700.0, "MODE": "high"}),
		"summary.csv": mustTable(t,
			dataset.TimeColumn("DATE", day(2020, 1, 1), day(2020, 2, 1)),
			dataset.FloatColumn("FOPT", 1, 2),
		),
	})

	cases := []struct {
		name string
		key  string
		f    Filter
		want bool
	}{
		{"key exists", "parameters.txt", Filter{Key: "FWL"}, true},
		{"key missing", "parameters.txt", Filter{Key: "OWC"}, false},
		{"numeric value", "parameters.txt", Filter{Key: "FWL", Value: 1700}, true},
		{"numeric text value", "parameters.txt", Filter{Key: "FWL", Value: "1700"}, true},
		{"wrong value", "parameters.txt", Filter{Key: "FWL", Value: 1800}, false},
		{"string value", "parameters.txt", Filter{Key: "MODE", Value: "high"}, true},
		{"column only", "summary.csv", Filter{Column: "FOPT"}, true},
		{"date contained", "summary.csv", Filter{Column: "DATE", ColumnContains: "2020-02-01"}, true},
		{"date absent", "summary.csv", Filter{Column: "DATE", ColumnContains: day(2020, 3, 1)}, false},
		{"missing dataset", "other.csv", Filter{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Filter(tc.key, tc.f); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDescribeListsColumns(t *testing.T) {
	r := detached(0, "", map[string]*dataset.Dataset{
		"npv.txt": dataset.NewScalar(1),
		"summary.csv": mustTable(t,
			dataset.TimeColumn("DATE", day(2020, 1, 1)),
			dataset.FloatColumn("FOPT", 1),
		),
	})
	fields := Describe(r)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %+v", fields)
	}
	if fields[0].Path != "npv.txt.value" || fields[0].Form != "scalar" || fields[0].Type != "float" {
		t.Fatalf("unexpected first field %+v", fields[0])
	}
	if fields[1].Path != "summary.csv.DATE" || fields[1].Type != "time" {
		t.Fatalf("unexpected DATE field %+v", fields[1])
	}
}
