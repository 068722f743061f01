package ensemble

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// DiskRealization reads its datasets from files below a root directory.
type DiskRealization struct {
	realizationCore
	root     string
	ensemble string
}

// NewDiskRealization binds index to the directory root. Nothing is read
// until Load or Get is called.
func NewDiskRealization(root string, index int, opts ...Option) *DiskRealization {
	return &DiskRealization{
		realizationCore: newRealizationCore(index, filepath.Base(root), opts),
		root:            root,
	}
}

// Root returns the directory the realization reads from.
func (r *DiskRealization) Root() string {
	return r.root
}

// Load parses root/source with the configured parser and internalizes it
// under source. Loading the same source again replaces the stored dataset.
func (r *DiskRealization) Load(kind dataset.Format, source string) error {
	_, err := r.load(context.Background(), kind, source)
	return err
}

func (r *DiskRealization) load(ctx context.Context, kind dataset.Format, source string) (Diagnostics, error) {
	key := path.Clean(filepath.ToSlash(source))
	ds, err := r.read(kind, key)
	if err != nil {
		return nil, err
	}
	var diags Diagnostics
	if ds.Has(dataset.RealColumn) {
		if err := ds.Rename(dataset.RealColumn, dataset.RealOrigColumn); err != nil {
			return nil, fmt.Errorf("ensemble: load %q: %w", key, err)
		}
		diags = diags.Add(diag.New(nil, "REAL column renamed to "+dataset.RealOrigColumn).
			ForKey(key).ForColumn(dataset.RealColumn).ForIndex(r.index))
	}
	r.store.Put(key, ds)
	index := r.index
	diags = append(diags, r.cfg.emit(ctx, activity.BuildRealizationLoadedEvent(activity.EnsembleEventInput{
		Ensemble: r.ensemble,
		Index:    &index,
		Key:      key,
		Metadata: map[string]any{"rows": ds.Len(), "format": string(kind)},
	}))...)
	return r.cfg.report(diags), nil
}

func (r *DiskRealization) read(kind dataset.Format, key string) (*dataset.Dataset, error) {
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("ensemble: load %q in realization %d: %w", key, r.index, ErrDataNotFound)
		}
		return nil, fmt.Errorf("ensemble: load %q: %w", key, err)
	}
	defer f.Close()
	ds, err := r.cfg.datasetParser().Parse(kind, f)
	if err != nil {
		return nil, fmt.Errorf("ensemble: parse %q: %w", key, err)
	}
	return ds, nil
}

// Get returns the internalized dataset for key. A key that is not
// internalized but names a csv or txt file below the root is parsed and
// returned without being stored.
func (r *DiskRealization) Get(key string, opts ...GetOption) (*dataset.Dataset, error) {
	ds, err := r.stored(key, opts)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	kind, ok := dataset.FormatFromPath(key)
	if !ok {
		return nil, fmt.Errorf("ensemble: get %q in realization %d: %w", key, r.index, dataNotFound(err))
	}
	ds, readErr := r.read(kind, path.Clean(filepath.ToSlash(key)))
	if readErr != nil {
		return nil, fmt.Errorf("ensemble: get %q in realization %d: %w", key, r.index, dataNotFound(err))
	}
	cfg := getConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg.apply(ds)
}
