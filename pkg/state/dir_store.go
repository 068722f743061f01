package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// ManifestName is the file DirStore writes next to the datasets of each
// realization.
const ManifestName = "_manifest.yaml"

// DirStore keeps each realization in its own directory below Root. Dataset
// keys become relative file paths written in their text format (CSV for
// tables, "key value" lines, a single line for scalars), and the manifest
// records every schema so reload does not guess column kinds.
type DirStore struct {
	Root string
	opts []ensemble.Option
	now  func() time.Time
}

type manifest struct {
	Index       int               `yaml:"index"`
	Description string            `yaml:"description,omitempty"`
	Meta        Meta              `yaml:"meta"`
	Datasets    []manifestDataset `yaml:"datasets"`
}

type manifestDataset struct {
	Key    string         `yaml:"key"`
	Schema SchemaDocument `yaml:"schema"`
}

// NewDirStore returns a store rooted at root. opts configure the restored
// realizations.
func NewDirStore(root string, opts ...ensemble.Option) *DirStore {
	return &DirStore{Root: root, opts: opts, now: time.Now}
}

func (s *DirStore) dir(ref Ref) (string, error) {
	key, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s.Root) == "" {
		return "", fmt.Errorf("state: dir store root is required")
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)), nil
}

func (s *DirStore) Load(ctx context.Context, ref Ref) (*ensemble.DetachedRealization, Meta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, false, err
	}
	dir, err := s.dir(ref)
	if err != nil {
		return nil, Meta{}, false, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Meta{}, false, nil
	}
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: read manifest %q: %w", dir, err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: decode manifest %q: %w", dir, err)
	}

	r := ensemble.NewDetachedRealization(m.Index, m.Description, s.opts...)
	for _, entry := range m.Datasets {
		file, err := datasetPath(dir, entry.Key)
		if err != nil {
			return nil, Meta{}, false, err
		}
		schema, err := entry.Schema.decode()
		if err != nil {
			return nil, Meta{}, false, fmt.Errorf("state: schema of %q: %w", entry.Key, err)
		}
		ds, err := readDataset(file, schema)
		if err != nil {
			return nil, Meta{}, false, fmt.Errorf("state: read %q: %w", entry.Key, err)
		}
		r.Put(entry.Key, ds)
	}
	return r, cloneMeta(m.Meta), true, nil
}

func readDataset(file string, schema dataset.Schema) (*dataset.Dataset, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.Read(f, schema)
}

// Save replaces the directory of ref with the datasets of r. The new
// content is written beside the old one and swapped in once complete.
func (s *DirStore) Save(ctx context.Context, ref Ref, r ensemble.Realization, meta Meta) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	if _, err := checkSave(ref, r); err != nil {
		return Meta{}, err
	}
	dir, err := s.dir(ref)
	if err != nil {
		return Meta{}, err
	}
	doc, err := NewDocument(r)
	if err != nil {
		return Meta{}, err
	}
	saved := stamp(meta, s.now())

	staging := dir + ".staging-" + uuid.NewString()
	defer os.RemoveAll(staging)
	m := manifest{Index: doc.Index, Description: doc.Description, Meta: saved}
	for _, entry := range doc.Datasets {
		file, err := datasetPath(staging, entry.Key)
		if err != nil {
			return Meta{}, err
		}
		if err := writeFile(file, []byte(entry.Data)); err != nil {
			return Meta{}, err
		}
		m.Datasets = append(m.Datasets, manifestDataset{Key: entry.Key, Schema: entry.Schema})
	}
	raw, err := yaml.Marshal(m)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode manifest: %w", err)
	}
	if err := writeFile(filepath.Join(staging, ManifestName), raw); err != nil {
		return Meta{}, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return Meta{}, fmt.Errorf("state: replace %q: %w", dir, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return Meta{}, fmt.Errorf("state: replace %q: %w", dir, err)
	}
	return cloneMeta(saved), nil
}

// List returns the saved indices of the named ensemble in ascending order.
func (s *DirStore) List(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Identifier validates the name; the index is irrelevant here.
	key, err := Ref{Ensemble: name}.Identifier()
	if err != nil {
		return nil, err
	}
	root := filepath.Join(s.Root, filepath.FromSlash(path.Dir(key)))
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: list %q: %w", root, err)
	}
	var out []int
	for _, entry := range entries {
		suffix, ok := strings.CutPrefix(entry.Name(), "realization-")
		if !entry.IsDir() || !ok {
			continue
		}
		index, err := strconv.Atoi(suffix)
		if err != nil || index < 0 {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, entry.Name(), ManifestName)); err == nil {
			out = append(out, index)
		}
	}
	sort.Ints(out)
	return out, nil
}

// datasetPath maps a dataset key below dir, refusing keys that would escape
// it or collide with the manifest.
func datasetPath(dir, key string) (string, error) {
	clean := path.Clean(key)
	if clean == "." || clean == ManifestName || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("state: dataset key %q cannot be stored as a file", key)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func writeFile(file string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("state: create %q: %w", filepath.Dir(file), err)
	}
	if err := os.WriteFile(file, raw, 0o644); err != nil {
		return fmt.Errorf("state: write %q: %w", file, err)
	}
	return nil
}
