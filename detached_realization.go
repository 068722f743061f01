package ensemble

import (
	"fmt"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// DetachedRealization holds datasets in memory only. Combination and
// aggregation results are detached, as are realizations restored from a
// state store.
type DetachedRealization struct {
	realizationCore
}

// NewDetachedRealization returns an empty detached realization.
func NewDetachedRealization(index int, description string, opts ...Option) *DetachedRealization {
	return &DetachedRealization{realizationCore: newRealizationCore(index, description, opts)}
}

// Put stores a copy of ds under key, replacing any previous value.
func (r *DetachedRealization) Put(key string, ds *dataset.Dataset) {
	r.store.Put(key, ds)
}

// Append stores ds under key. An existing key is an error unless overwrite
// is set.
func (r *DetachedRealization) Append(key string, ds *dataset.Dataset, overwrite bool) error {
	if ds == nil {
		return fmt.Errorf("ensemble: append %q: dataset is nil", key)
	}
	if !overwrite && r.store.Has(key) {
		return fmt.Errorf("ensemble: append %q in realization %d: %w", key, r.index, ErrKeyExists)
	}
	r.store.Put(key, ds)
	return nil
}

// Get returns a copy of the stored dataset for key.
func (r *DetachedRealization) Get(key string, opts ...GetOption) (*dataset.Dataset, error) {
	ds, err := r.stored(key, opts)
	if err != nil {
		return nil, fmt.Errorf("ensemble: get %q in realization %d: %w", key, r.index, dataNotFound(err))
	}
	return ds, nil
}

// Load always fails, a detached realization has no directory to read from.
func (r *DetachedRealization) Load(kind dataset.Format, source string) error {
	return fmt.Errorf("ensemble: load %q: %w", source, ErrDetachedLoad)
}
