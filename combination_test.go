package ensemble

import (
	"errors"
	"testing"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/dataset"
)

const summaryKey = "share/results/tables/unsmry--monthly.csv"

func summaryTable(t *testing.T, fopt, fopr []float64) *dataset.Dataset {
	t.Helper()
	return mustTable(t,
		dataset.TimeColumn("DATE", day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1)),
		dataset.FloatColumn("FOPT", fopt...),
		dataset.FloatColumn("FOPR", fopr...),
		dataset.StringColumn("WELL", "OP_1", "OP_1", "OP_1"),
	)
}

func TestCombinationAddSubIsIdentity(t *testing.T) {
	a := detached(0, "A", map[string]*dataset.Dataset{
		summaryKey:       summaryTable(t, []float64{1, 2, 3}, []float64{10, 20, 30}),
		"parameters.txt": dataset.NewKeyValue(map[string]any{"FWL": 1700.0}),
	})
	b := detached(1, "B", map[string]*dataset.Dataset{
		summaryKey: summaryTable(t, []float64{10, 20, 30}, []float64{4, 5, 6}),
	})

	expr := Sub(Add(a, b), b)
	if got := expr.String(); got != "((A + B) - B)" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if keys := expr.Keys(); len(keys) != 1 || keys[0] != summaryKey {
		t.Fatalf("expected only the shared key, got %v", keys)
	}

	out, _, err := expr.EvaluateRealization()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Index() != 0 {
		t.Fatalf("expected leftmost index 0, got %d", out.Index())
	}
	got, err := out.Get(summaryKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want, _ := a.Get(summaryKey)
	if !got.Equal(want) {
		t.Fatalf("expected (A+B)-B == A\n got %v\nwant %v", got.Row(0), want.Row(0))
	}
	if _, err := out.Get("parameters.txt"); !errors.Is(err, ErrDataNotFound) {
		t.Fatalf("keys outside the intersection must be absent, got %v", err)
	}
}

func TestCombinationScaleComposes(t *testing.T) {
	a := detached(0, "A", map[string]*dataset.Dataset{
		summaryKey: summaryTable(t, []float64{1, 2, 3}, []float64{10, 20, 30}),
	})
	twice, _, err := Scale(Scale(a, 2), 3).EvaluateRealization()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	once, _, err := a.expr().Scale(6).EvaluateRealization()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	x, _ := twice.Get(summaryKey)
	y, _ := once.Get(summaryKey)
	if !x.Equal(y) {
		t.Fatalf("expected Scale(Scale(A,2),3) == Scale(A,6)")
	}
	assertFloats(t, floats(t, x, "FOPT"), []float64{6, 12, 18})
}

func TestCombinationAlignsOnDate(t *testing.T) {
	a := detached(0, "A", map[string]*dataset.Dataset{
		"t.csv": mustTable(t,
			dataset.TimeColumn("DATE", day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1)),
			dataset.FloatColumn("FOPT", 1, 2, 3),
			dataset.FloatColumn("FGPT", 7, 7, 7),
		),
	})
	b := detached(0, "B", map[string]*dataset.Dataset{
		"t.csv": mustTable(t,
			dataset.TimeColumn("DATE", day(2020, 3, 1), day(2020, 2, 1), day(2020, 4, 1)),
			dataset.FloatColumn("FOPT", 30, 20, 40),
		),
	})

	out, diags, err := Add(a, b).EvaluateRealization()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	ds, err := out.Get("t.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ds.Has("FGPT") {
		t.Fatalf("one-sided column must be dropped, got %v", ds.Names())
	}
	assertFloats(t, floats(t, ds, "FOPT"), []float64{22, 33})
	dropped := diags.Matching(ErrColumnDropped)
	if len(dropped) != 1 || dropped[0].Column != "FGPT" || dropped[0].Key != "t.csv" {
		t.Fatalf("expected a dropped-column diagnostic for FGPT, got %+v", diags)
	}
}

func TestCombinationEnsembleIntersection(t *testing.T) {
	member := func(index int, v float64) Realization {
		return detached(index, "", map[string]*dataset.Dataset{"npv.txt": dataset.NewScalar(v)})
	}
	iter0 := mustEnsemble(t, "iter-0", member(0, 1), member(1, 2), member(2, 3))
	iter1 := mustEnsemble(t, "iter-1", member(1, 20), member(2, 30), member(3, 40))

	capture := &activity.CaptureHook{}
	delta := Sub(iter1, Scale(iter0, 0.5))
	if got := delta.String(); got != "(iter-1 - 0.5*iter-0)" {
		t.Fatalf("unexpected rendering %q", got)
	}
	out, _, err := delta.EvaluateEnsemble(WithName("delta"), WithActivityHooks(activity.Hooks{capture}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Name() != "delta" {
		t.Fatalf("expected name delta, got %q", out.Name())
	}
	if got := out.Indices(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected indices [1 2], got %v", got)
	}
	ds, _, err := out.Get("npv.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertFloats(t, floats(t, ds, dataset.ScalarColumn), []float64{19, 28.5})

	if len(capture.Events) != 1 || capture.Events[0].Verb != activity.VerbCombinationEvaluated {
		t.Fatalf("expected one combination event, got %+v", capture.Events)
	}
}

func TestCombinationEmptyIntersection(t *testing.T) {
	a := mustEnsemble(t, "a", detached(5, "", map[string]*dataset.Dataset{"npv.txt": dataset.NewScalar(1)}))
	b := mustEnsemble(t, "b", detached(6, "", map[string]*dataset.Dataset{"npv.txt": dataset.NewScalar(1)}))
	out, diags, err := Sub(a, b).EvaluateEnsemble()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Len() != 0 || !diags.Has(ErrEmptyIntersection) {
		t.Fatalf("expected empty result with diagnostic, got %d members %+v", out.Len(), diags)
	}
}

func TestCombinationKeyFilter(t *testing.T) {
	a := detached(0, "A", map[string]*dataset.Dataset{
		"npv.txt":        dataset.NewScalar(1),
		"unsmry--yearly": dataset.NewScalar(2),
	})
	out, _, err := Add(a, a).EvaluateRealization(WithKeyFilter("unsmry*"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if keys := out.Keys(); len(keys) != 1 || keys[0] != "unsmry--yearly" {
		t.Fatalf("expected only the filtered key, got %v", keys)
	}
}

func TestCombinationOperandMismatch(t *testing.T) {
	r := NewDetachedRealization(0, "")
	ens := mustEnsemble(t, "iter-0")
	if _, _, err := Add(r, ens).EvaluateRealization(); !errors.Is(err, ErrOperandMismatch) {
		t.Fatalf("expected ErrOperandMismatch, got %v", err)
	}
	if _, _, err := Add(r, r).EvaluateEnsemble(); !errors.Is(err, ErrOperandMismatch) {
		t.Fatalf("expected ErrOperandMismatch for realization leaves, got %v", err)
	}
}

func TestCombinationLeavesOperandsUntouched(t *testing.T) {
	a := detached(0, "A", map[string]*dataset.Dataset{"npv.txt": dataset.NewScalar(1)})
	if _, _, err := Scale(a, 10).EvaluateRealization(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	ds, _ := a.Get("npv.txt")
	if v, _ := ds.Value(dataset.ScalarColumn); v != 1.0 {
		t.Fatalf("operand mutated: %v", v)
	}
}

func TestCombinationDropsNonNumericDataset(t *testing.T) {
	names := func() *dataset.Dataset {
		return mustTable(t, dataset.StringColumn("WELL", "OP_1", "OP_2"))
	}
	a := detached(0, "A", map[string]*dataset.Dataset{
		"names": names(),
		"kv":    dataset.NewKeyValue(map[string]any{"FWL": 1.0, "MODE": "low"}),
		"sc":    dataset.NewScalar(2),
	})
	b := detached(1, "B", map[string]*dataset.Dataset{
		"names": names(),
		"kv":    dataset.NewKeyValue(map[string]any{"FWL": 2.0, "MODE": "high"}),
		"sc":    dataset.NewScalar(5),
	})

	out, diags, err := Add(Scale(a, 2), b).EvaluateRealization()
	if err != nil {
		t.Fatalf("a string-only dataset must not fail the evaluation: %v", err)
	}
	if keys := out.Keys(); len(keys) != 2 || keys[0] != "kv" || keys[1] != "sc" {
		t.Fatalf("expected kv and sc to survive, got %v", keys)
	}
	dropped := diags.Matching(ErrNoNumericData)
	if len(dropped) == 0 {
		t.Fatalf("expected a no-numeric-data diagnostic, got %v", diags)
	}
	for _, d := range dropped {
		if d.Key != "names" {
			t.Fatalf("unexpected dataset dropped: %+v", d)
		}
	}
	if !diags.Has(ErrColumnDropped) {
		t.Fatalf("expected the differing MODE entry to be dropped, got %v", diags)
	}

	kv, _ := out.Get("kv")
	if v, _ := kv.Float("FWL", 0); v != 4 {
		t.Fatalf("expected FWL 2*1+2 = 4, got %v", v)
	}
	if kv.Has("MODE") {
		t.Fatalf("expected MODE to be dropped")
	}
	sc, _ := out.Get("sc")
	if v, _ := sc.Float(dataset.ScalarColumn, 0); v != 9 {
		t.Fatalf("expected 2*2+5 = 9, got %v", v)
	}
}

func TestSetColumnReportsLengthMismatch(t *testing.T) {
	out := mustTable(t, dataset.FloatColumn("FOPT", 1, 2))
	diags := setColumn(out, dataset.FloatColumn("FOPR", 1, 2, 3), nil)
	if !diags.Has(dataset.ErrLengthMismatch) {
		t.Fatalf("expected a length mismatch diagnostic, got %v", diags)
	}
	if diags[0].Column != "FOPR" || out.Has("FOPR") {
		t.Fatalf("expected FOPR reported and left out, got %+v", diags[0])
	}
	if diags = setColumn(out, dataset.FloatColumn("FOPR", 3, 4), diags); len(diags) != 1 || !out.Has("FOPR") {
		t.Fatalf("expected a fitting column to be added silently, got %v", diags)
	}
}
