package timeseries

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// Semantics tells how a column is read between samples.
type Semantics int

const (
	// Interpolate reads linearly between the neighbouring samples.
	Interpolate Semantics = iota
	// StepBackward holds each sample back to the previous sample, the
	// natural reading of a rate reported over the preceding interval.
	StepBackward
	// StepForward holds each sample until the next sample.
	StepForward
)

// IsCumulative reports whether a summary column name denotes a cumulative
// quantity, for example FOPT or WOPT:OP_1 but not WCT.
func IsCumulative(name string) bool {
	if strings.HasSuffix(name, "T") && !strings.Contains(name, ":") && !strings.Contains(name, "CT") {
		return true
	}
	return strings.Contains(name, "T:") && !strings.Contains(name, "CT:")
}

// RateColumn maps a cumulative column name to its rate name, FOPT to FOPR.
func RateColumn(name string) (string, bool) {
	comps := strings.Split(name, ":")
	if len(comps) > 2 {
		return "", false
	}
	if strings.Contains(comps[0], "CT") || !strings.Contains(comps[0], "T") {
		return "", false
	}
	comps[0] = strings.ReplaceAll(comps[0], "T", "R")
	return strings.Join(comps, ":"), true
}

// DefaultSemantics interpolates cumulative columns and holds everything else
// backward.
func DefaultSemantics(name string) Semantics {
	if IsCumulative(name) {
		return Interpolate
	}
	return StepBackward
}

// Option configures Resample.
type Option func(*resampleConfig)

type resampleConfig struct {
	normalize bool
	clip      bool
	semantics map[string]Semantics
	fallback  func(string) Semantics
}

// WithNormalize extends regular grids to whole periods around the data.
func WithNormalize(normalize bool) Option {
	return func(cfg *resampleConfig) {
		cfg.normalize = normalize
	}
}

// WithClip removes grid dates outside the dataset's DATE span instead of
// reporting them as out of range.
func WithClip(clip bool) Option {
	return func(cfg *resampleConfig) {
		cfg.clip = clip
	}
}

// WithSemantics overrides the semantics of one column.
func WithSemantics(column string, s Semantics) Option {
	return func(cfg *resampleConfig) {
		if cfg.semantics == nil {
			cfg.semantics = map[string]Semantics{}
		}
		cfg.semantics[column] = s
	}
}

// WithDefaultSemantics replaces the name based column classification.
func WithDefaultSemantics(fn func(column string) Semantics) Option {
	return func(cfg *resampleConfig) {
		if fn != nil {
			cfg.fallback = fn
		}
	}
}

func applyOptions(opts []Option) resampleConfig {
	cfg := resampleConfig{fallback: DefaultSemantics}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg resampleConfig) semanticsFor(column string) Semantics {
	if s, ok := cfg.semantics[column]; ok {
		return s
	}
	return cfg.fallback(column)
}

// Dates returns the sorted unique dates of ds.
func Dates(ds *dataset.Dataset) ([]time.Time, error) {
	col, ok := ds.Column(dataset.DateColumn)
	if !ok || col.Kind != dataset.Time {
		return nil, ErrNoDateColumn
	}
	return Unique(col.Times), nil
}

// Resample maps ds onto the grid described by index. The raw index returns a
// copy of ds unchanged. Columns that cannot be read at some grid date are
// dropped and reported as ErrOutOfRange diagnostics.
func Resample(ds *dataset.Dataset, index TimeIndex, opts ...Option) (*dataset.Dataset, diag.Diagnostics, error) {
	cfg := applyOptions(opts)
	if index.IsRaw() {
		if _, err := Dates(ds); err != nil {
			return nil, nil, err
		}
		return ds.Clone(), nil, nil
	}
	observed, err := Dates(ds)
	if err != nil {
		return nil, nil, err
	}
	grid, err := index.Grid(observed, cfg.normalize)
	if err != nil {
		return nil, nil, err
	}
	if cfg.clip && len(observed) > 0 {
		grid = clipDates(grid, observed[0], observed[len(observed)-1])
	}
	return resampleOnto(ds, grid, cfg)
}

func resampleOnto(ds *dataset.Dataset, grid []time.Time, cfg resampleConfig) (*dataset.Dataset, diag.Diagnostics, error) {
	dates, _ := ds.Column(dataset.DateColumn)
	sorted, err := ds.FilterRows(func(i int) bool {
		return !dates.IsMissing(i)
	}).SortBy(dataset.DateColumn)
	if err != nil {
		return nil, nil, err
	}
	dateCol, _ := sorted.Column(dataset.DateColumn)

	out, err := dataset.New(ds.Form(), dataset.TimeColumn(dataset.DateColumn, grid...))
	if err != nil {
		return nil, nil, err
	}
	var diags diag.Diagnostics
	for _, col := range sorted.Columns() {
		if col.Name == dataset.DateColumn {
			continue
		}
		resampled, err := resampleColumn(dateCol.Times, col, grid, cfg.semanticsFor(col.Name))
		if err != nil {
			diags = diags.Add(diag.New(err, "column dropped").ForColumn(col.Name))
			continue
		}
		if err := out.Set(resampled); err != nil {
			return nil, diags, err
		}
	}
	return out, diags, nil
}

func resampleColumn(times []time.Time, col *dataset.Column, grid []time.Time, semantics Semantics) (*dataset.Column, error) {
	// samples holds the rows carrying a value for this column
	samples := make([]int, 0, len(times))
	for i := range times {
		if !col.IsMissing(i) {
			samples = append(samples, i)
		}
	}
	out := dataset.EmptyColumn(col.Name, col.Kind, len(grid))
	if len(grid) == 0 {
		return out, nil
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: column has no values", ErrOutOfRange)
	}
	first, last := times[samples[0]], times[samples[len(samples)-1]]
	if col.Kind != dataset.Float && semantics == Interpolate {
		semantics = StepBackward
	}
	for g, t := range grid {
		if t.Before(first) || t.After(last) {
			return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRange,
				dataset.FormatTime(t), dataset.FormatTime(first), dataset.FormatTime(last))
		}
		// j is the first sample at or after t
		j := searchSamples(times, samples, t)
		exact := times[samples[j]].Equal(t)
		switch {
		case exact || semantics == StepBackward:
			copyCell(out, g, col, samples[j])
		case semantics == StepForward:
			copyCell(out, g, col, samples[j-1])
		default:
			lo, hi := samples[j-1], samples[j]
			span := times[hi].Sub(times[lo]).Seconds()
			frac := t.Sub(times[lo]).Seconds() / span
			out.Floats[g] = col.Floats[lo] + frac*(col.Floats[hi]-col.Floats[lo])
		}
	}
	return out, nil
}

func searchSamples(times []time.Time, samples []int, t time.Time) int {
	lo, hi := 0, len(samples)
	for lo < hi {
		mid := (lo + hi) / 2
		if times[samples[mid]].Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func copyCell(dst *dataset.Column, i int, src *dataset.Column, j int) {
	switch src.Kind {
	case dataset.Float:
		dst.Floats[i] = src.Floats[j]
	case dataset.String:
		dst.Strings[i] = src.Strings[j]
	case dataset.Time:
		dst.Times[i] = src.Times[j]
	}
}

func clipDates(grid []time.Time, start, end time.Time) []time.Time {
	out := make([]time.Time, 0, len(grid))
	for _, t := range grid {
		if t.Before(start) || t.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out
}
