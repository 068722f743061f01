package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// Ensemble is a named collection of realizations keyed by index.
type Ensemble struct {
	name    string
	mu      sync.RWMutex
	members map[int]Realization
	cfg     config
}

// New groups members under name. Two members sharing an index is an error.
func New(name string, members []Realization, opts ...Option) (*Ensemble, error) {
	e := &Ensemble{
		name:    name,
		members: make(map[int]Realization, len(members)),
		cfg:     applyOptions(opts),
	}
	for _, r := range members {
		if err := e.Insert(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Discover builds an ensemble of disk-backed realizations from the sources
// listed by enum. No data is loaded.
func Discover(ctx context.Context, name string, enum Enumerator, opts ...Option) (*Ensemble, error) {
	if enum == nil {
		return nil, fmt.Errorf("ensemble: enumerator is nil")
	}
	sources, err := enum.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]Realization, 0, len(sources))
	for _, src := range sources {
		members = append(members, NewDiskRealization(src.Root, src.Index, opts...))
	}
	return New(name, members, opts...)
}

// Name returns the ensemble name.
func (e *Ensemble) Name() string {
	return e.name
}

// Len returns the number of realizations.
func (e *Ensemble) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.members)
}

// Indices returns the realization indices in ascending order.
func (e *Ensemble) Indices() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int, 0, len(e.members))
	for index := range e.members {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

// Realization returns the member with index.
func (e *Ensemble) Realization(index int) (Realization, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.members[index]
	return r, ok
}

// Realizations returns the members ordered by index.
func (e *Ensemble) Realizations() []Realization {
	indices := e.Indices()
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Realization, 0, len(indices))
	for _, index := range indices {
		if r, ok := e.members[index]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Insert adds r. Its index must not be taken.
func (e *Ensemble) Insert(r Realization) error {
	if r == nil {
		return fmt.Errorf("ensemble: realization is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.members[r.Index()]; exists {
		return fmt.Errorf("ensemble: %s: %w: %d", e.name, ErrDuplicateIndex, r.Index())
	}
	if disk, ok := r.(*DiskRealization); ok && disk.ensemble == "" {
		disk.ensemble = e.name
	}
	e.members[r.Index()] = r
	return nil
}

// RemoveRealizations drops the members with the given indices. Unknown
// indices are ignored.
func (e *Ensemble) RemoveRealizations(indices ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, index := range indices {
		delete(e.members, index)
	}
}

// RemoveData deletes the dataset key from every realization holding it.
func (e *Ensemble) RemoveData(key string) Diagnostics {
	var diags Diagnostics
	for _, r := range e.Realizations() {
		err := r.Drop(key, DropSpec{})
		if err != nil && !errors.Is(err, ErrDataNotFound) {
			diags = diags.Add(diag.New(err, "dataset not removed").ForKey(key).ForIndex(r.Index()))
		}
	}
	return e.cfg.report(diags)
}

// Keys returns the union of the keys of all realizations, sorted.
func (e *Ensemble) Keys() []string {
	seen := map[string]struct{}{}
	for _, r := range e.Realizations() {
		for _, key := range r.Keys() {
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Get stacks the dataset key of every realization into one table whose first
// column is REAL. Realizations without the key are skipped and reported.
func (e *Ensemble) Get(key string, opts ...GetOption) (*dataset.Dataset, Diagnostics, error) {
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, r := range e.Realizations() {
		ds, err := r.Get(key, opts...)
		if err != nil {
			if errors.Is(err, ErrDataNotFound) || errors.Is(err, ErrKeyNotFound) {
				diags = diags.Add(diag.New(ErrDataNotFound, "realization skipped").ForKey(key).ForIndex(r.Index()))
				continue
			}
			return nil, e.cfg.report(diags), err
		}
		parts = append(parts, withReal(ds, r.Index()))
	}
	if len(parts) == 0 {
		return nil, e.cfg.report(diags), fmt.Errorf("ensemble: %s: %q: %w", e.name, key, ErrDataNotFound)
	}
	out, err := dataset.Concat(parts...)
	if err != nil {
		return nil, e.cfg.report(diags), fmt.Errorf("ensemble: %s: stack %q: %w", e.name, key, err)
	}
	return out, e.cfg.report(diags), nil
}

// withReal returns a table copy of ds led by a REAL column holding index.
func withReal(ds *dataset.Dataset, index int) *dataset.Dataset {
	out := ds.Drop(dataset.RealColumn).WithForm(dataset.Table)
	reals := make([]float64, ds.Len())
	for i := range reals {
		reals[i] = float64(index)
	}
	_ = out.Prepend(dataset.FloatColumn(dataset.RealColumn, reals...))
	return out
}

// Filter keeps the realizations whose dataset key satisfies f. In place the
// others are removed from e and e is returned; otherwise a detached ensemble
// holding copies of the matching realizations is returned.
func (e *Ensemble) Filter(key string, f Filter, inPlace bool) (*Ensemble, error) {
	var keep, drop []int
	for _, r := range e.Realizations() {
		if r.Filter(key, f) {
			keep = append(keep, r.Index())
		} else {
			drop = append(drop, r.Index())
		}
	}
	if inPlace {
		e.RemoveRealizations(drop...)
		return e, nil
	}
	out := &Ensemble{name: e.name, members: make(map[int]Realization, len(keep)), cfg: e.cfg}
	for _, index := range keep {
		if r, ok := e.Realization(index); ok {
			out.members[index] = r.ToDetached()
		}
	}
	return out, nil
}

// Drop applies spec to the dataset key of every realization. Realizations
// without the key are skipped.
func (e *Ensemble) Drop(key string, spec DropSpec) (Diagnostics, error) {
	var diags Diagnostics
	for _, r := range e.Realizations() {
		err := r.Drop(key, spec)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrDataNotFound) {
			diags = diags.Add(diag.New(ErrDataNotFound, "realization skipped").ForKey(key).ForIndex(r.Index()))
			continue
		}
		return e.cfg.report(diags), err
	}
	return e.cfg.report(diags), nil
}

// Query stacks the dataset key and keeps the rows for which expr holds.
func (e *Ensemble) Query(key, expr string) (*dataset.Dataset, Diagnostics, error) {
	stacked, diags, err := e.Get(key)
	if err != nil {
		return nil, diags, err
	}
	matches, err := e.cfg.matchRows(key, nil, stacked, expr)
	if err != nil {
		return nil, diags, err
	}
	return stacked.FilterRows(func(row int) bool { return matches[row] }), diags, nil
}

// ToDetached copies every realization into a detached ensemble.
func (e *Ensemble) ToDetached() *Ensemble {
	out := &Ensemble{name: e.name, members: map[int]Realization{}, cfg: e.cfg}
	for _, r := range e.Realizations() {
		out.members[r.Index()] = r.ToDetached()
	}
	return out
}
