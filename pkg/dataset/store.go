package dataset

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	ErrKeyNotFound  = errors.New("dataset: key not found")
	ErrAmbiguousKey = errors.New("dataset: ambiguous key")
)

// Store holds the datasets internalized by one realization. Datasets are
// cloned on the way in and out so two stores never share a value.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Dataset
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: map[string]*Dataset{}}
}

// Put stores a copy of ds under key, replacing any previous value.
func (s *Store) Put(key string, ds *Dataset) {
	key = normalizeKey(key)
	clone := ds.Clone()
	s.mu.Lock()
	if s.data == nil {
		s.data = map[string]*Dataset{}
	}
	s.data[key] = clone
	s.mu.Unlock()
}

// Get resolves key and returns a copy of the stored dataset.
func (s *Store) Get(key string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resolved, err := s.resolveLocked(key)
	if err != nil {
		return nil, err
	}
	return s.data[resolved].Clone(), nil
}

// Has reports whether key resolves to exactly one stored dataset.
func (s *Store) Has(key string) bool {
	_, err := s.Resolve(key)
	return err == nil
}

// Delete resolves key and removes the dataset.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved, err := s.resolveLocked(key)
	if err != nil {
		return err
	}
	delete(s.data, resolved)
	return nil
}

// Keys returns the stored keys sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clone returns a store holding copies of every dataset.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Store{data: make(map[string]*Dataset, len(s.data))}
	for k, v := range s.data {
		out.data[k] = v.Clone()
	}
	return out
}

// Resolve maps a possibly shortened key onto a stored key. An exact match
// wins, then a unique stored key whose last path segment equals key, then a
// unique stored key equal to key once its extension is dropped, and last a
// unique last path segment equal to key without extension.
func (s *Store) Resolve(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(key)
}

func (s *Store) resolveLocked(key string) (string, error) {
	return resolveIn(key, func(yield func(string) bool) {
		for stored := range s.data {
			if !yield(stored) {
				return
			}
		}
	})
}

// ResolveKey applies the Resolve rules to key against a list of known keys.
func ResolveKey(key string, keys []string) (string, error) {
	return resolveIn(key, func(yield func(string) bool) {
		for _, stored := range keys {
			if !yield(normalizeKey(stored)) {
				return
			}
		}
	})
}

func resolveIn(key string, known func(yield func(string) bool)) (string, error) {
	key = normalizeKey(key)
	exact := false
	known(func(stored string) bool {
		exact = stored == key
		return !exact
	})
	if exact {
		return key, nil
	}
	matchers := []func(stored string) bool{
		func(stored string) bool { return path.Base(stored) == key },
		func(stored string) bool { return stripExt(stored) == key },
		func(stored string) bool { return stripExt(path.Base(stored)) == key },
	}
	for _, match := range matchers {
		var candidates []string
		known(func(stored string) bool {
			if match(stored) && !containsKey(candidates, stored) {
				candidates = append(candidates, stored)
			}
			return true
		})
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], nil
		default:
			sort.Strings(candidates)
			return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousKey, key, strings.Join(candidates, ", "))
		}
	}
	return "", fmt.Errorf("%w: %q", ErrKeyNotFound, key)
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func normalizeKey(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	return strings.TrimPrefix(key, "./")
}

func stripExt(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}
