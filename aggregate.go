package ensemble

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
	"github.com/goliatone/go-ensemble/pkg/stats"
)

// AggregateIndex is the index given to aggregated realizations. It never
// collides with a member index.
const AggregateIndex = -1

// GroupColumns are grouped on when present in an aggregated dataset, in
// addition to every non-numeric column.
var GroupColumns = []string{"DATE", "FIPNUM", "ZONE", "REGION", "JOBINDEX", "Zone", "Region_index"}

// AggregateOption narrows which keys are aggregated.
type AggregateOption func(*aggregateConfig)

type aggregateConfig struct {
	keys    []string
	exclude []string
}

// WithKeys aggregates only the given keys. Plain entries are resolved like
// Realization.Get, so "npv" selects "share/results/npv.txt". Entries holding
// *, ? or [ are path.Match globs against the full key or its last segment.
func WithKeys(patterns ...string) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.keys = append(cfg.keys, patterns...)
	}
}

// WithExcludeKeys skips keys selected by patterns, using the WithKeys rules.
func WithExcludeKeys(patterns ...string) AggregateOption {
	return func(cfg *aggregateConfig) {
		cfg.exclude = append(cfg.exclude, patterns...)
	}
}

// selectKeys returns the members of keys named by patterns. Plain entries
// that resolve to nothing or to several keys are reported.
func selectKeys(keys, patterns []string) (map[string]bool, Diagnostics) {
	selected := map[string]bool{}
	var diags Diagnostics
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[") {
			key, err := dataset.ResolveKey(p, keys)
			if err != nil {
				diags = diags.Add(diag.New(err, "key list entry ignored").ForKey(p))
				continue
			}
			selected[key] = true
			continue
		}
		for _, key := range keys {
			if globMatches(p, key) {
				selected[key] = true
			}
		}
	}
	return selected, diags
}

func globMatches(pattern, key string) bool {
	if ok, _ := path.Match(pattern, key); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(key))
	return ok
}

// Aggregate reduces every dataset of ens across realizations with
// statistic. The result is a detached realization with index AggregateIndex
// and is not inserted into ens.
func Aggregate(ens *Ensemble, statistic string, opts ...AggregateOption) (*DetachedRealization, Diagnostics, error) {
	if ens == nil {
		return nil, nil, fmt.Errorf("ensemble: aggregate: ensemble is nil")
	}
	return ens.Aggregate(statistic, opts...)
}

// Aggregate reduces every dataset across realizations, see Aggregate.
func (e *Ensemble) Aggregate(statistic string, opts ...AggregateOption) (*DetachedRealization, Diagnostics, error) {
	stat, err := stats.Parse(statistic)
	if err != nil {
		return nil, nil, fmt.Errorf("ensemble: aggregate %s: %w", e.name, err)
	}
	cfg := aggregateConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := &DetachedRealization{realizationCore: realizationCore{
		index:       AggregateIndex,
		description: e.name + " " + stat.Name,
		store:       dataset.NewStore(),
		cfg:         e.cfg,
	}}
	keys := e.Keys()
	included, diags := selectKeys(keys, cfg.keys)
	excluded, _ := selectKeys(keys, cfg.exclude)
	for _, key := range keys {
		if len(cfg.keys) > 0 && !included[key] {
			continue
		}
		if excluded[key] {
			continue
		}
		stacked, form, err := e.stackForAggregation(key)
		if err != nil {
			diags = diags.Add(diag.New(err, "key not aggregated").ForKey(key))
			continue
		}
		ds, err := aggregateDataset(stacked, stat, form)
		if err != nil {
			diags = diags.Add(diag.New(err, "key not aggregated").ForKey(key))
			continue
		}
		out.Put(key, ds)
	}
	diags = append(diags, e.cfg.emit(context.Background(), activity.BuildEnsembleAggregatedEvent(activity.EnsembleEventInput{
		Ensemble:  e.name,
		Statistic: stat.Name,
		Metadata:  map[string]any{"keys": out.store.Len()},
	}))...)
	return out, e.cfg.report(diags), nil
}

// stackForAggregation stacks key across the members that hold it and
// reports the form of the source data.
func (e *Ensemble) stackForAggregation(key string) (*dataset.Dataset, dataset.Form, error) {
	var (
		parts []*dataset.Dataset
		form  = dataset.Table
	)
	for _, r := range e.Realizations() {
		ds, err := r.Get(key)
		if err != nil {
			continue
		}
		if len(parts) == 0 {
			form = ds.Form()
		}
		parts = append(parts, withReal(ds, r.Index()))
	}
	if len(parts) == 0 {
		return nil, form, ErrDataNotFound
	}
	stacked, err := dataset.Concat(parts...)
	return stacked, form, err
}

// aggregateDataset reduces the stacked rows of ds per group. REAL is
// removed; groups are the GroupColumns present plus every non-numeric
// column, ordered ascending. Key-value and scalar data reduce to one row and
// drop their non-numeric values.
func aggregateDataset(ds *dataset.Dataset, stat stats.Statistic, form dataset.Form) (*dataset.Dataset, error) {
	ds = ds.Drop(dataset.RealColumn)
	form = keepForm(form)
	var groupBy []string
	if form == dataset.Table {
		for _, col := range ds.Columns() {
			if col.Kind != dataset.Float || containsString(GroupColumns, col.Name) {
				groupBy = append(groupBy, col.Name)
			}
		}
	}
	values := ds.NumericNames(groupBy...)
	if len(values) == 0 {
		return nil, ErrNoNumericData
	}

	groups, order := groupRows(ds, groupBy)
	if len(groupBy) > 0 {
		sorted, err := sortGroups(ds, groupBy, groups, order)
		if err != nil {
			return nil, err
		}
		order = sorted
	}

	first := make([]int, len(order))
	for i, g := range order {
		first[i] = groups[g][0]
	}
	out, err := ds.Take(first).Select(append(append([]string{}, groupBy...), values...)...)
	if err != nil {
		return nil, err
	}
	sample := make([]float64, 0, ds.Len())
	for _, name := range values {
		src, _ := ds.Column(name)
		reduced := make([]float64, len(order))
		for i, g := range order {
			sample = sample[:0]
			for _, row := range groups[g] {
				sample = append(sample, src.Floats[row])
			}
			reduced[i] = stat.Compute(sample)
		}
		if err := out.Set(dataset.FloatColumn(name, reduced...)); err != nil {
			return nil, err
		}
	}
	return out.WithForm(form), nil
}

func keepForm(form dataset.Form) dataset.Form {
	if form == dataset.KeyValue || form == dataset.Scalar {
		return form
	}
	return dataset.Table
}

func groupRows(ds *dataset.Dataset, groupBy []string) (map[string][]int, []string) {
	groups := map[string][]int{}
	var order []string
	for i := 0; i < ds.Len(); i++ {
		key := ""
		if len(groupBy) > 0 {
			key = tupleKey(ds, groupBy, i)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return groups, order
}

func sortGroups(ds *dataset.Dataset, groupBy []string, groups map[string][]int, order []string) ([]string, error) {
	cols := make([]*dataset.Column, len(groupBy))
	for i, name := range groupBy {
		col, ok := ds.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dataset.ErrColumnNotFound, name)
		}
		cols[i] = col
	}
	sorted := append([]string{}, order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := groups[sorted[i]][0], groups[sorted[j]][0]
		for _, col := range cols {
			if c := dataset.CompareAt(col, a, b); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return sorted, nil
}
