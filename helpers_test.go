package ensemble

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func mustTable(t *testing.T, cols ...*dataset.Column) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.NewTable(cols...)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return ds
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func floats(t *testing.T, ds *dataset.Dataset, name string) []float64 {
	t.Helper()
	col, ok := ds.Column(name)
	if !ok {
		t.Fatalf("column %q missing, have %v", name, ds.Names())
	}
	if col.Kind != dataset.Float {
		t.Fatalf("column %q is %s", name, col.Kind)
	}
	return col.Floats
}

func assertFloats(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if math.IsNaN(want[i]) && math.IsNaN(got[i]) {
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func detached(index int, description string, data map[string]*dataset.Dataset) *DetachedRealization {
	r := NewDetachedRealization(index, description)
	for key, ds := range data {
		r.Put(key, ds)
	}
	return r
}

func mustEnsemble(t *testing.T, name string, members ...Realization) *Ensemble {
	t.Helper()
	ens, err := New(name, members)
	if err != nil {
		t.Fatalf("new ensemble: %v", err)
	}
	return ens
}
