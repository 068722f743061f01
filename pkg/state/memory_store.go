package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ensemble "github.com/goliatone/go-ensemble"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. It uses Ref.Identifier() as its deterministic key and keeps
// detached copies, so saved realizations are isolated from later changes.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	ref         Ref
	realization *ensemble.DetachedRealization
	meta        Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

func (s *MemoryStore) Load(ctx context.Context, ref Ref) (*ensemble.DetachedRealization, Meta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, false, err
	}
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return record.realization.ToDetached(), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, ref Ref, r ensemble.Realization, meta Meta) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	key, err := checkSave(ref, r)
	if err != nil {
		return Meta{}, err
	}

	saved := stamp(meta, s.now())
	ref.Ensemble = strings.TrimSpace(ref.Ensemble)
	s.mu.Lock()
	s.records[key] = memoryRecord{ref: ref, realization: r.ToDetached(), meta: saved}
	s.mu.Unlock()
	return cloneMeta(saved), nil
}

// List returns the saved indices of the named ensemble in ascending order.
func (s *MemoryStore) List(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for _, record := range s.records {
		if record.ref.Ensemble == strings.TrimSpace(name) {
			out = append(out, record.ref.Index)
		}
	}
	sort.Ints(out)
	return out, nil
}

// checkSave validates a save request and returns the storage key.
func checkSave(ref Ref, r ensemble.Realization) (string, error) {
	key, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("state: save %s: realization is nil", key)
	}
	if r.Index() != ref.Index {
		return "", fmt.Errorf("%w: %s holds realization %d", ErrInvalidRef, key, r.Index())
	}
	return key, nil
}
