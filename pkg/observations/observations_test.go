package observations

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func realization(t *testing.T, index int, scale float64) *ensemble.DetachedRealization {
	t.Helper()
	summary, err := dataset.NewTable(
		dataset.TimeColumn(dataset.DateColumn, day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1)),
		dataset.FloatColumn("FOPT", 0, 108*scale, 200*scale),
		dataset.FloatColumn("FOPTH", 0, 100, 210),
	)
	require.NoError(t, err)
	r := ensemble.NewDetachedRealization(index, "")
	r.Put(ensemble.SummaryKey(timeseries.Raw), summary)
	r.Put("parameters.txt", dataset.NewKeyValue(map[string]any{"FWL": 1700.0}))
	r.Put("npv.txt", dataset.NewScalar(3.5))
	return r
}

func fixtureSet() *Set {
	return &Set{
		Smry: []SmryUnit{{
			Key: "FOPT",
			Observations: []Point{
				{Date: day(2020, 2, 1), Value: 100, Error: 5},
				{Date: day(2021, 1, 1), Value: 300, Error: 5},
			},
		}},
		Smryh:  []SmryhUnit{{Key: "FOPT", HistVec: "FOPTH"}},
		Txt:    []TxtUnit{{LocalPath: "parameters.txt", Key: "FWL", Value: 1710}},
		Scalar: []ScalarUnit{{Key: "npv.txt", Value: 4}},
	}
}

func rowFor(t *testing.T, rows []Row, category Category) Row {
	t.Helper()
	for _, row := range rows {
		if row.Category == category {
			return row
		}
	}
	t.Fatalf("no %s row in %+v", category, rows)
	return Row{}
}

func TestMismatchRealization(t *testing.T) {
	set := fixtureSet()
	rows, diags := set.MismatchRealization(realization(t, 0, 1))
	require.Len(t, rows, 4)

	smry := rowFor(t, rows, Smry)
	assert.InDelta(t, 108, smry.SimValue, 1e-9)
	assert.InDelta(t, 8, smry.Mismatch, 1e-9)
	assert.InDelta(t, 8, smry.L1, 1e-9)
	assert.InDelta(t, 64, smry.L2, 1e-9)
	assert.Equal(t, 5.0, smry.MeasError)
	assert.Equal(t, 1, smry.Sign)
	assert.True(t, smry.Date.Equal(day(2020, 2, 1)))

	history := rowFor(t, rows, Smryh)
	assert.InDelta(t, -2, history.Mismatch, 1e-9)
	assert.InDelta(t, 18, history.L1, 1e-9)
	assert.InDelta(t, math.Sqrt(164), history.L2, 1e-9)
	assert.Equal(t, -1, history.Sign)

	txt := rowFor(t, rows, Txt)
	assert.Equal(t, "parameters.txt/FWL", txt.Key)
	assert.InDelta(t, -10, txt.Mismatch, 1e-9)

	scalar := rowFor(t, rows, Scalar)
	assert.InDelta(t, 0.25, scalar.L2, 1e-9)

	require.Len(t, diags, 1, "the 2021 point lies beyond the simulated range")
	assert.True(t, diags.Has(ensemble.ErrDataNotFound))
	assert.Equal(t, "FOPT", diags[0].Key)
}

func TestMismatchSkipsMissingData(t *testing.T) {
	set := &Set{
		Txt:    []TxtUnit{{LocalPath: "outputs.txt", Key: "X", Value: 1}},
		Scalar: []ScalarUnit{{Key: "npv.txt", Value: 4}},
		Smryh:  []SmryhUnit{{Key: "FOPT", HistVec: "FOPTX"}},
	}
	rows, diags := set.MismatchRealization(realization(t, 3, 1))
	require.Len(t, rows, 1)
	assert.Equal(t, Scalar, rows[0].Category)
	assert.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, 3, d.Index)
	}
}

func TestEnsembleMismatchKeepsIndexOrder(t *testing.T) {
	ens, err := ensemble.New("iter-0", []ensemble.Realization{
		realization(t, 4, 2),
		realization(t, 1, 1),
	})
	require.NoError(t, err)

	set := &Set{Smry: []SmryUnit{{Key: "FOPT", Observations: []Point{{Date: day(2020, 2, 1), Value: 100, Error: 5}}}}}
	result, diags, err := set.Mismatch(context.Background(), ens, WithWorkers(2))
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 1, result.Rows[0].Real)
	assert.Equal(t, 4, result.Rows[1].Real)
	assert.InDelta(t, 116, result.Rows[1].Mismatch, 1e-9)

	table, err := result.Dataset()
	require.NoError(t, err)
	assert.Equal(t, []string{
		dataset.RealColumn, ColumnObsType, ColumnObsKey, dataset.DateColumn, ColumnLabel, ColumnObsIndex,
		ColumnMismatch, ColumnL1, ColumnL2, ColumnSimValue, ColumnObsValue, ColumnMeasError, ColumnSign,
	}, table.Names())
	assert.Equal(t, 2, table.Len())
}

func TestMismatchCancelled(t *testing.T) {
	ens, err := ensemble.New("iter-0", []ensemble.Realization{realization(t, 0, 1)})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = fixtureSet().Mismatch(ctx, ens)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMisfit(t *testing.T) {
	set := fixtureSet()
	r := realization(t, 0, 1)
	misfit, err := set.Misfit(r, false)
	require.NoError(t, err)
	assert.InDelta(t, 64.0/25+math.Sqrt(164)+100+0.25, misfit, 1e-9)

	set.Smry[0].Observations[0].Error = 0
	_, err = set.Misfit(r, false)
	assert.ErrorIs(t, err, ErrZeroError)

	misfit, err = set.Misfit(r, true)
	require.NoError(t, err)
	assert.InDelta(t, 64+math.Sqrt(164)+100+0.25, misfit, 1e-9)
}

func TestLoadSummaryBuildsVirtualUnit(t *testing.T) {
	reference := realization(t, 0, 1)
	set := &Set{}
	require.NoError(t, set.LoadSummary(reference, "FOPT", timeseries.TimeIndex{Frequency: timeseries.Monthly}, 10))
	require.Len(t, set.Smry, 1)
	unit := set.Smry[0]
	require.Len(t, unit.Observations, 3)
	assert.Equal(t, 10.0, unit.Observations[1].Error)
	assert.Contains(t, unit.Comment, "realization-0")

	rows, diags := set.MismatchRealization(reference)
	assert.Empty(t, diags)
	for _, row := range rows {
		assert.InDelta(t, 0, row.Mismatch, 1e-9)
	}

	assert.Error(t, set.LoadSummary(reference, "WOPT", timeseries.TimeIndex{Frequency: timeseries.Monthly}, 1))
}

func TestFromMappingCleansUnits(t *testing.T) {
	set, diags, err := FromMapping(map[string]any{
		"smry": []any{
			map[string]any{
				"key": "FOPT",
				"observations": []any{
					map[string]any{"date": "2020-02-01", "value": 100, "error": 5},
				},
			},
			map[string]any{"key": "FGPT"},
			"not a unit",
		},
		"smryh":  []any{map[string]any{"key": "FOPT", "histvec": "FOPTH", "time_index": "fortnightly"}},
		"txt":    "not a list",
		"scalar": []any{map[string]any{"key": "npv.txt", "value": 4}},
		"rft":    []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, []Category{Smry, Scalar}, set.Categories())
	require.Len(t, set.Smry, 1)
	assert.True(t, set.Smry[0].Observations[0].Date.Equal(day(2020, 2, 1)))

	assert.Len(t, diags, 5)
	assert.True(t, diags.Has(ErrUnsupportedCategory))
	assert.Len(t, diags.Matching(ErrMalformedUnit), 4)
}

func TestEmptySetIsValid(t *testing.T) {
	set, diags, err := FromMapping(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.True(t, set.Empty())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	set := fixtureSet()
	set.Smry[0].Observations[0].Label = "first"
	path := filepath.Join(t.TempDir(), "obs", "observations.yml")
	require.NoError(t, set.Save(path))

	loaded, diags, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, set.Len(), loaded.Len())
	assert.Equal(t, "first", loaded.Smry[0].Observations[0].Label)

	r := realization(t, 0, 1)
	want, _ := set.MismatchRealization(r)
	got, _ := loaded.MismatchRealization(r)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.InDelta(t, want[i].L2, got[i].L2, 1e-9)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestMismatchNumbersSmryPoints(t *testing.T) {
	set := &Set{Smry: []SmryUnit{{Key: "FOPT", Observations: []Point{
		{Date: day(2020, 2, 1), Value: 100, Error: 5},
		{Date: day(2020, 3, 1), Value: 190, Error: 5},
	}}}}
	rows, diags := set.MismatchRealization(realization(t, 0, 1))
	assert.Empty(t, diags)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].ObsIndex)
	assert.Equal(t, 1, rows[1].ObsIndex)

	table, err := (&Result{Rows: rows}).Dataset()
	require.NoError(t, err)
	first, err := table.Float(ColumnObsIndex, 0)
	require.NoError(t, err)
	second, err := table.Float(ColumnObsIndex, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, []float64{first, second})
}
