package ensemble

import (
	"fmt"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
	"github.com/goliatone/go-ensemble/pkg/stats"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

// StatisticColumn labels the rows of SummaryStats.
const StatisticColumn = "STATISTIC"

type summarySource interface {
	SummaryDates(index timeseries.TimeIndex) ([]time.Time, error)
	VolumetricRates(columns []string, index timeseries.TimeIndex, unit timeseries.Unit) (*dataset.Dataset, Diagnostics, error)
	summary(columns []string, index timeseries.TimeIndex, opts ...timeseries.Option) (*dataset.Dataset, Diagnostics, error)
}

func asSummarySource(r Realization) (summarySource, bool) {
	s, ok := r.(summarySource)
	return s, ok
}

// SummaryDates returns the union of the member grids for index. Regular
// frequencies are laid over the union of all observed dates.
func (e *Ensemble) SummaryDates(index timeseries.TimeIndex) ([]time.Time, error) {
	raw := timeseries.TimeIndex{Frequency: timeseries.Raw}
	var lists [][]time.Time
	for _, r := range e.Realizations() {
		src, ok := asSummarySource(r)
		if !ok {
			continue
		}
		dates, err := src.SummaryDates(raw)
		if err != nil {
			continue
		}
		lists = append(lists, dates)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("ensemble: %s: %w: no summary data", e.name, ErrDataNotFound)
	}
	return index.Grid(timeseries.Union(lists...), false)
}

// Summary stacks the summary vectors of every member on one shared grid.
// Each member only contributes the grid dates inside its own simulated span.
func (e *Ensemble) Summary(columns []string, index timeseries.TimeIndex) (*dataset.Dataset, Diagnostics, error) {
	target := index
	if !index.IsRaw() {
		grid, err := e.SummaryDates(index)
		if err != nil {
			return nil, nil, err
		}
		target = timeseries.TimeIndex{Frequency: timeseries.Custom, Dates: grid}
	}
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, r := range e.Realizations() {
		src, ok := asSummarySource(r)
		if !ok {
			continue
		}
		ds, d, err := src.summary(columns, target, timeseries.WithClip(true))
		diags = append(diags, d...)
		if err != nil {
			diags = diags.Add(diag.New(err, "realization skipped").ForIndex(r.Index()))
			continue
		}
		parts = append(parts, withReal(ds, r.Index()))
	}
	if len(parts) == 0 {
		return nil, diags, fmt.Errorf("ensemble: %s: %w: no summary data", e.name, ErrDataNotFound)
	}
	out, err := dataset.Concat(parts...)
	if err != nil {
		return nil, diags, err
	}
	return out, diags, nil
}

// SummaryStats reduces the ensemble summary per date to the mean, the
// minimum, the maximum and the pXX statistics for each of quantiles
// (default 10 and 90). Rows are labelled in the STATISTIC column.
func (e *Ensemble) SummaryStats(columns []string, index timeseries.TimeIndex, quantiles ...int) (*dataset.Dataset, Diagnostics, error) {
	stacked, diags, err := e.Summary(columns, index)
	if err != nil {
		return nil, diags, err
	}
	if len(quantiles) == 0 {
		quantiles = []int{10, 90}
	}
	type named struct {
		label string
		stat  string
	}
	statistics := []named{{"mean", "mean"}}
	for _, q := range quantiles {
		if q < 0 || q > 99 {
			return nil, diags, fmt.Errorf("ensemble: %w: quantile %d", ErrInvalidStatistic, q)
		}
		name := fmt.Sprintf("p%02d", q)
		statistics = append(statistics, named{name, name})
	}
	statistics = append(statistics, named{"maximum", "max"}, named{"minimum", "min"})

	parts := make([]*dataset.Dataset, 0, len(statistics))
	for _, s := range statistics {
		reduced, err := aggregateDataset(stacked, stats.MustParse(s.stat), dataset.Table)
		if err != nil {
			return nil, diags, err
		}
		labels := make([]string, reduced.Len())
		for i := range labels {
			labels[i] = s.label
		}
		if err := reduced.Prepend(dataset.StringColumn(StatisticColumn, labels...)); err != nil {
			return nil, diags, err
		}
		parts = append(parts, reduced)
	}
	out, err := dataset.Concat(parts...)
	return out, diags, err
}

// VolumetricRates stacks the rates derived by every member, see
// timeseries.VolumetricRates.
func (e *Ensemble) VolumetricRates(columns []string, index timeseries.TimeIndex, unit timeseries.Unit) (*dataset.Dataset, Diagnostics, error) {
	if _, err := timeseries.ParseUnit(string(unit)); err != nil {
		return nil, nil, err
	}
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, r := range e.Realizations() {
		src, ok := asSummarySource(r)
		if !ok {
			continue
		}
		ds, d, err := src.VolumetricRates(columns, index, unit)
		diags = append(diags, d...)
		if err != nil {
			diags = diags.Add(diag.New(err, "realization skipped").ForIndex(r.Index()))
			continue
		}
		parts = append(parts, withReal(ds, r.Index()))
	}
	if len(parts) == 0 {
		return nil, diags, fmt.Errorf("ensemble: %s: %w: no summary data", e.name, ErrDataNotFound)
	}
	out, err := dataset.Concat(parts...)
	return out, diags, err
}

// SummaryKey is the dataset key a summary resampled to freq is stored under.
func SummaryKey(freq timeseries.Frequency) string {
	return "share/results/tables/" + SummaryPrefix + string(freq) + ".csv"
}

// LoadSummary resamples the member summaries to index and stores each result
// under SummaryKey, making later Summary calls at that frequency cheap.
func (e *Ensemble) LoadSummary(columns []string, index timeseries.TimeIndex) (Diagnostics, error) {
	if index.Frequency == timeseries.Custom {
		return nil, fmt.Errorf("ensemble: %w: explicit dates cannot be stored as a summary", ErrInvalidFrequency)
	}
	freq := index.Frequency
	if index.IsRaw() {
		freq = timeseries.Raw
	}
	stacked, diags, err := e.Summary(columns, index)
	if err != nil {
		return diags, err
	}
	realCol, _ := stacked.Column(dataset.RealColumn)
	for _, r := range e.Realizations() {
		member := float64(r.Index())
		part := stacked.FilterRows(func(row int) bool { return realCol.Floats[row] == member }).Drop(dataset.RealColumn)
		if part.Len() == 0 {
			continue
		}
		if err := putSummary(r, SummaryKey(freq), part); err != nil {
			diags = diags.Add(diag.New(err, "summary not stored").ForIndex(r.Index()))
		}
	}
	return diags, nil
}

func putSummary(r Realization, key string, ds *dataset.Dataset) error {
	switch v := r.(type) {
	case *DiskRealization:
		v.store.Put(key, ds)
	case *DetachedRealization:
		v.Put(key, ds)
	default:
		return fmt.Errorf("ensemble: realization %d cannot store data", r.Index())
	}
	return nil
}
