package ensemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

// EnsembleColumn leads every dataset stacked across an ensemble set.
const EnsembleColumn = "ENSEMBLE"

// UnknownIteration names the ensemble of realizations found outside any
// iter-N directory.
const UnknownIteration = "Unknown"

// DefaultIterationPattern finds the iteration directory in a realization path.
var DefaultIterationPattern = regexp.MustCompile(`^(iter-\d+)$`)

// EnsembleSet is a named collection of ensembles, typically the iterations
// of one history matching run.
type EnsembleSet struct {
	name    string
	mu      sync.RWMutex
	members map[string]*Ensemble
	cfg     config
}

// NewEnsembleSet groups members under name. Two ensembles sharing a name is
// an error.
func NewEnsembleSet(name string, members []*Ensemble, opts ...Option) (*EnsembleSet, error) {
	s := &EnsembleSet{
		name:    name,
		members: make(map[string]*Ensemble, len(members)),
		cfg:     applyOptions(opts),
	}
	for _, e := range members {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DiscoverSet globs realization directories and groups them into one
// ensemble per iteration. A pattern without "realization" in it is taken as
// the run root and extended with realization-*/iter-*. The iteration is the
// rightmost path component like iter-N; realizations outside one land in
// the Unknown ensemble.
func DiscoverSet(ctx context.Context, name, pattern string, opts ...Option) (*EnsembleSet, error) {
	if !strings.Contains(pattern, "realization") {
		pattern = filepath.Join(pattern, "realization-*", "iter-*")
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ensemble: glob %q: %w", pattern, err)
	}
	groups := map[string][]Source{}
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		index, ok := realizationIndex(match)
		if !ok {
			continue
		}
		iter := iterationName(match)
		groups[iter] = append(groups[iter], Source{Index: index, Root: match})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("ensemble: %s: %w: no realizations match %q", name, ErrDataNotFound, pattern)
	}
	set, err := NewEnsembleSet(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	for _, iter := range sortedKeys(groups) {
		sources := groups[iter]
		sort.Slice(sources, func(i, j int) bool { return sources[i].Index < sources[j].Index })
		enum := EnumeratorFunc(func(context.Context) ([]Source, error) { return sources, nil })
		ens, err := Discover(ctx, iter, enum, opts...)
		if err != nil {
			return nil, err
		}
		if err := set.Add(ens); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func realizationIndex(path string) (int, bool) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		groups := DefaultIndexPattern.FindStringSubmatch(parts[i])
		if len(groups) < 2 {
			continue
		}
		index, err := strconv.Atoi(groups[1])
		if err != nil {
			return 0, false
		}
		return index, true
	}
	return 0, false
}

func iterationName(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if groups := DefaultIterationPattern.FindStringSubmatch(parts[i]); len(groups) == 2 {
			return groups[1]
		}
	}
	return UnknownIteration
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Name returns the set name.
func (s *EnsembleSet) Name() string {
	return s.name
}

// Len returns the number of ensembles.
func (s *EnsembleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Add inserts e. Its name must not be taken.
func (s *EnsembleSet) Add(e *Ensemble) error {
	if e == nil {
		return fmt.Errorf("ensemble: ensemble is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[e.Name()]; exists {
		return fmt.Errorf("ensemble: %s: %w: %q", s.name, ErrDuplicateEnsemble, e.Name())
	}
	s.members[e.Name()] = e
	return nil
}

// Remove drops the named ensembles. Unknown names are ignored.
func (s *EnsembleSet) Remove(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.members, name)
	}
}

// Names returns the ensemble names, sorted.
func (s *EnsembleSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.members)
}

// Ensemble returns the member called name.
func (s *EnsembleSet) Ensemble(name string) (*Ensemble, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.members[name]
	return e, ok
}

// Ensembles returns the members ordered by name.
func (s *EnsembleSet) Ensembles() []*Ensemble {
	names := s.Names()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ensemble, 0, len(names))
	for _, name := range names {
		if e, ok := s.members[name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Keys returns the union of the keys of all ensembles, sorted.
func (s *EnsembleSet) Keys() []string {
	seen := map[string]struct{}{}
	for _, e := range s.Ensembles() {
		for _, key := range e.Keys() {
			seen[key] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// LoadBatch runs requests on every ensemble. Reports are keyed by ensemble
// name.
func (s *EnsembleSet) LoadBatch(ctx context.Context, requests ...LoadRequest) (Diagnostics, map[string]BulkReport) {
	var diags Diagnostics
	reports := map[string]BulkReport{}
	for _, e := range s.Ensembles() {
		d, rep := e.LoadBatch(ctx, requests...)
		diags = append(diags, d...)
		reports[e.Name()] = rep
	}
	return diags, reports
}

// LoadFile loads source into every realization of every ensemble.
func (s *EnsembleSet) LoadFile(ctx context.Context, kind dataset.Format, source string) (Diagnostics, map[string]BulkReport) {
	return s.LoadBatch(ctx, LoadRequest{Format: kind, Source: source})
}

// withEnsemble returns a copy of ds led by an ENSEMBLE column holding name.
func withEnsemble(ds *dataset.Dataset, name string) *dataset.Dataset {
	out := ds.Drop(EnsembleColumn).WithForm(dataset.Table)
	names := make([]string, ds.Len())
	for i := range names {
		names[i] = name
	}
	_ = out.Prepend(dataset.StringColumn(EnsembleColumn, names...))
	return out
}

// Get stacks the ensemble Get of every member with a leading ENSEMBLE
// column, so rows read ENSEMBLE, REAL, ... Ensembles without the key are
// skipped and reported.
func (s *EnsembleSet) Get(key string, opts ...GetOption) (*dataset.Dataset, Diagnostics, error) {
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, e := range s.Ensembles() {
		ds, d, err := e.Get(key, opts...)
		if err != nil {
			if errors.Is(err, ErrDataNotFound) {
				diags = diags.Add(diag.New(ErrDataNotFound, fmt.Sprintf("ensemble %s skipped", e.Name())).ForKey(key))
				continue
			}
			return nil, s.cfg.report(diags), err
		}
		diags = append(diags, d...)
		parts = append(parts, withEnsemble(ds, e.Name()))
	}
	if len(parts) == 0 {
		return nil, s.cfg.report(diags), fmt.Errorf("ensemble: set %s: %q: %w", s.name, key, ErrDataNotFound)
	}
	out, err := dataset.Concat(parts...)
	if err != nil {
		return nil, s.cfg.report(diags), fmt.Errorf("ensemble: set %s: stack %q: %w", s.name, key, err)
	}
	return out, s.cfg.report(diags), nil
}

// SummaryDates lays index over the union of the raw summary dates of all
// members.
func (s *EnsembleSet) SummaryDates(index timeseries.TimeIndex) ([]time.Time, error) {
	raw := timeseries.TimeIndex{Frequency: timeseries.Raw}
	var lists [][]time.Time
	for _, e := range s.Ensembles() {
		dates, err := e.SummaryDates(raw)
		if err != nil {
			continue
		}
		lists = append(lists, dates)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("ensemble: set %s: %w: no summary data", s.name, ErrDataNotFound)
	}
	return index.Grid(timeseries.Union(lists...), false)
}

// Summary stacks the summary of every member on one grid shared by the
// whole set.
func (s *EnsembleSet) Summary(columns []string, index timeseries.TimeIndex) (*dataset.Dataset, Diagnostics, error) {
	target := index
	if !index.IsRaw() {
		grid, err := s.SummaryDates(index)
		if err != nil {
			return nil, nil, err
		}
		target = timeseries.TimeIndex{Frequency: timeseries.Custom, Dates: grid}
	}
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, e := range s.Ensembles() {
		ds, d, err := e.Summary(columns, target)
		diags = append(diags, d...)
		if err != nil {
			diags = diags.Add(diag.New(err, fmt.Sprintf("ensemble %s skipped", e.Name())))
			continue
		}
		parts = append(parts, withEnsemble(ds, e.Name()))
	}
	if len(parts) == 0 {
		return nil, s.cfg.report(diags), fmt.Errorf("ensemble: set %s: %w: no summary data", s.name, ErrDataNotFound)
	}
	out, err := dataset.Concat(parts...)
	if err != nil {
		return nil, s.cfg.report(diags), err
	}
	return out, s.cfg.report(diags), nil
}

// Aggregate reduces every member with statistic. The results are keyed by
// ensemble name.
func (s *EnsembleSet) Aggregate(statistic string, opts ...AggregateOption) (map[string]*DetachedRealization, Diagnostics, error) {
	out := map[string]*DetachedRealization{}
	var diags Diagnostics
	for _, e := range s.Ensembles() {
		agg, d, err := e.Aggregate(statistic, opts...)
		diags = append(diags, d...)
		if err != nil {
			return nil, diags, err
		}
		out[e.Name()] = agg
	}
	return out, diags, nil
}

// Apply runs fn over every member and stacks the results with a leading
// ENSEMBLE column. Reports are keyed by ensemble name.
func (s *EnsembleSet) Apply(ctx context.Context, fn ApplyFunc) (*dataset.Dataset, map[string]BulkReport) {
	reports := map[string]BulkReport{}
	var parts []*dataset.Dataset
	for _, e := range s.Ensembles() {
		ds, rep := e.Apply(ctx, fn)
		reports[e.Name()] = rep
		if ds != nil && ds.Len() > 0 {
			parts = append(parts, withEnsemble(ds, e.Name()))
		}
	}
	stacked, err := dataset.Concat(parts...)
	if err != nil {
		return nil, reports
	}
	return stacked, reports
}

// Drop applies spec to the dataset key across the set. The key must be
// known to at least one member; ensembles without it are skipped.
func (s *EnsembleSet) Drop(key string, spec DropSpec) (Diagnostics, error) {
	resolved, err := dataset.ResolveKey(key, s.Keys())
	if err != nil {
		return nil, fmt.Errorf("ensemble: set %s: %q: %w", s.name, key, ErrDataNotFound)
	}
	var diags Diagnostics
	for _, e := range s.Ensembles() {
		d, err := e.Drop(resolved, spec)
		diags = append(diags, d...)
		if err != nil {
			return diags, err
		}
	}
	return diags, nil
}

// RemoveData deletes the dataset key from every ensemble.
func (s *EnsembleSet) RemoveData(key string) Diagnostics {
	var diags Diagnostics
	for _, e := range s.Ensembles() {
		diags = append(diags, e.RemoveData(key)...)
	}
	return diags
}
