package ensemble

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

// SummaryPrefix starts the final path segment of internalized summary
// datasets, for example share/results/tables/unsmry--monthly.csv.
const SummaryPrefix = "unsmry--"

// Realization is one simulation outcome: an index plus the datasets that
// belong to it.
type Realization interface {
	Operand
	Index() int
	Description() string
	Keys() []string
	Get(key string, opts ...GetOption) (*dataset.Dataset, error)
	Load(kind dataset.Format, source string) error
	Drop(key string, spec DropSpec) error
	Filter(key string, f Filter) bool
	ToDetached() *DetachedRealization
	Summary(columns []string, index timeseries.TimeIndex) (*dataset.Dataset, Diagnostics, error)
}

// GetOption narrows what Get returns.
type GetOption func(*getConfig)

type getConfig struct {
	columns []string
}

// GetColumns restricts the returned dataset to the named columns. Index
// columns present in the dataset are always kept.
func GetColumns(names ...string) GetOption {
	return func(cfg *getConfig) {
		cfg.columns = append(cfg.columns, names...)
	}
}

func (cfg getConfig) apply(ds *dataset.Dataset) (*dataset.Dataset, error) {
	if len(cfg.columns) == 0 {
		return ds, nil
	}
	var names []string
	for _, name := range dataset.IndexColumns {
		if ds.Has(name) {
			names = append(names, name)
		}
	}
	for _, name := range cfg.columns {
		if !containsString(names, name) {
			names = append(names, name)
		}
	}
	return ds.Select(names...)
}

// DropSpec selects what Drop removes from a dataset. The zero value removes
// the dataset itself.
type DropSpec struct {
	// Columns are removed from table datasets.
	Columns []string
	// RowContains removes every row holding a cell whose text equals it.
	RowContains string
	// Keys are removed from key-value datasets.
	Keys []string
	// Where removes every row for which the predicate holds.
	Where string
}

func (s DropSpec) empty() bool {
	return len(s.Columns) == 0 && s.RowContains == "" && len(s.Keys) == 0 && s.Where == ""
}

// Filter is a containment check on one dataset. With only Key set on a
// key-value dataset it checks the key exists; Value adds an equality test.
// Column and ColumnContains check that some row of a table column equals the
// value, DATE columns compare as dates.
type Filter struct {
	Key            string
	Value          any
	Column         string
	ColumnContains any
}

type realizationCore struct {
	index       int
	description string
	store       *dataset.Store
	cfg         config
}

func newRealizationCore(index int, description string, opts []Option) realizationCore {
	return realizationCore{
		index:       index,
		description: description,
		store:       dataset.NewStore(),
		cfg:         applyOptions(opts),
	}
}

// Index returns the realization index.
func (r *realizationCore) Index() int {
	return r.index
}

// Description returns a human readable label.
func (r *realizationCore) Description() string {
	return r.description
}

// Keys lists the internalized dataset keys, sorted.
func (r *realizationCore) Keys() []string {
	return r.store.Keys()
}

func (r *realizationCore) stored(key string, opts []GetOption) (*dataset.Dataset, error) {
	ds, err := r.store.Get(key)
	if err != nil {
		return nil, err
	}
	cfg := getConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg.apply(ds)
}

// Drop removes data from the dataset key, see DropSpec.
func (r *realizationCore) Drop(key string, spec DropSpec) error {
	resolved, err := r.store.Resolve(key)
	if err != nil {
		return fmt.Errorf("ensemble: drop %q: %w", key, dataNotFound(err))
	}
	if spec.empty() {
		return r.store.Delete(resolved)
	}
	ds, err := r.store.Get(resolved)
	if err != nil {
		return err
	}
	if len(spec.Columns) > 0 || len(spec.Keys) > 0 {
		ds = ds.Drop(append(append([]string{}, spec.Columns...), spec.Keys...)...)
	}
	if spec.RowContains != "" {
		ds = ds.FilterRows(func(row int) bool {
			return !rowContains(ds, row, spec.RowContains)
		})
	}
	if spec.Where != "" {
		index := r.index
		matches, err := r.cfg.matchRows(resolved, &index, ds, spec.Where)
		if err != nil {
			return err
		}
		ds = ds.FilterRows(func(row int) bool {
			return !matches[row]
		})
	}
	r.store.Put(resolved, ds)
	return nil
}

func rowContains(ds *dataset.Dataset, row int, value string) bool {
	for _, col := range ds.Columns() {
		if !col.IsMissing(row) && col.Text(row) == value {
			return true
		}
	}
	return false
}

// Filter reports whether the dataset key satisfies f. A key that does not
// resolve never matches.
func (r *realizationCore) Filter(key string, f Filter) bool {
	ds, err := r.store.Get(key)
	if err != nil {
		return false
	}
	return matchesFilter(ds, f)
}

func matchesFilter(ds *dataset.Dataset, f Filter) bool {
	if f.Key != "" {
		col, ok := ds.Column(f.Key)
		if !ok || ds.Len() == 0 {
			return false
		}
		if f.Value != nil && !cellEquals(col, 0, f.Value) {
			return false
		}
	}
	if f.Column != "" {
		col, ok := ds.Column(f.Column)
		if !ok {
			return false
		}
		if f.ColumnContains != nil {
			found := false
			for i := 0; i < col.Len() && !found; i++ {
				found = cellEquals(col, i, f.ColumnContains)
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func cellEquals(col *dataset.Column, i int, value any) bool {
	if col.IsMissing(i) {
		return false
	}
	switch col.Kind {
	case dataset.Float:
		f, ok := toFloat(value)
		return ok && col.Floats[i] == f
	case dataset.Time:
		t, ok := toTime(value)
		return ok && col.Times[i].Equal(t)
	}
	return col.Strings[i] == fmt.Sprint(value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return math.NaN(), false
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := dataset.ParseTime(v)
		return t, err == nil
	}
	return time.Time{}, false
}

// ToDetached copies every internalized dataset into a new detached
// realization with the same index and description.
func (r *realizationCore) ToDetached() *DetachedRealization {
	out := &DetachedRealization{realizationCore: realizationCore{
		index:       r.index,
		description: r.description,
		store:       r.store.Clone(),
		cfg:         r.cfg,
	}}
	return out
}

// SummaryKeys lists the internalized summary datasets keyed by frequency.
func (r *realizationCore) SummaryKeys() map[timeseries.Frequency]string {
	out := map[timeseries.Frequency]string{}
	for _, key := range r.store.Keys() {
		base := path.Base(key)
		if !strings.HasPrefix(base, SummaryPrefix) {
			continue
		}
		freq := timeseries.Frequency(strings.TrimSuffix(strings.TrimPrefix(base, SummaryPrefix), path.Ext(base)))
		out[freq] = key
	}
	return out
}

var summaryPreference = []timeseries.Frequency{
	timeseries.Raw, timeseries.Daily, timeseries.Weekly,
	timeseries.Monthly, timeseries.Yearly, timeseries.Custom,
}

// summarySource picks the internalized summary for index: the same frequency
// when present, otherwise the finest one available.
func (r *realizationCore) summarySource(index timeseries.TimeIndex) (string, error) {
	keys := r.SummaryKeys()
	if key, ok := keys[index.Frequency]; ok && index.Frequency != timeseries.Custom {
		return key, nil
	}
	for _, freq := range summaryPreference {
		if key, ok := keys[freq]; ok {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: no %s* dataset in realization %d", ErrDataNotFound, SummaryPrefix, r.index)
}

// Summary returns summary vectors matching columns, resampled onto index.
// Column names may use path.Match wildcards; no columns selects all.
func (r *realizationCore) Summary(columns []string, index timeseries.TimeIndex) (*dataset.Dataset, Diagnostics, error) {
	return r.summary(columns, index)
}

func (r *realizationCore) summary(columns []string, index timeseries.TimeIndex, opts ...timeseries.Option) (*dataset.Dataset, Diagnostics, error) {
	key, err := r.summarySource(index)
	if err != nil {
		return nil, nil, err
	}
	ds, err := r.store.Get(key)
	if err != nil {
		return nil, nil, err
	}
	if len(columns) > 0 {
		names := append([]string{dataset.DateColumn}, matchColumns(ds, columns)...)
		if ds, err = ds.Select(names...); err != nil {
			return nil, nil, err
		}
	}
	out, diags, err := timeseries.Resample(ds, index, opts...)
	diags = diags.WithKey(key).WithIndex(r.index)
	if err != nil {
		return nil, r.cfg.report(diags), fmt.Errorf("ensemble: summary of realization %d: %w", r.index, err)
	}
	return out, r.cfg.report(diags), nil
}

// SummaryDates lists the dates of the summary grid for index.
func (r *realizationCore) SummaryDates(index timeseries.TimeIndex) ([]time.Time, error) {
	key, err := r.summarySource(index)
	if err != nil {
		return nil, err
	}
	ds, err := r.store.Get(key)
	if err != nil {
		return nil, err
	}
	observed, err := timeseries.Dates(ds)
	if err != nil {
		return nil, err
	}
	return index.Grid(observed, false)
}

// VolumetricRates derives rates for the cumulative summary columns.
func (r *realizationCore) VolumetricRates(columns []string, index timeseries.TimeIndex, unit timeseries.Unit) (*dataset.Dataset, Diagnostics, error) {
	source, err := r.summarySource(timeseries.TimeIndex{Frequency: timeseries.Raw})
	if err != nil {
		return nil, nil, err
	}
	ds, err := r.store.Get(source)
	if err != nil {
		return nil, nil, err
	}
	if len(columns) > 0 {
		columns = matchColumns(ds, columns)
	}
	out, diags, err := timeseries.VolumetricRates(ds, columns, index, unit)
	return out, r.cfg.report(diags.WithKey(source).WithIndex(r.index)), err
}

// matchColumns expands wildcard patterns against the columns of ds, keeping
// the dataset order. DATE never matches.
func matchColumns(ds *dataset.Dataset, patterns []string) []string {
	var out []string
	for _, name := range ds.Names() {
		if name == dataset.DateColumn {
			continue
		}
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, name); ok || pattern == name {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// dataNotFound marks unresolved keys with ErrDataNotFound, keeping
// ErrKeyNotFound in the chain.
func dataNotFound(err error) error {
	if errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("%w: %w", ErrDataNotFound, err)
	}
	return err
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
