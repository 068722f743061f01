package ensemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// DefaultIndexPattern extracts the realization index from a directory path.
var DefaultIndexPattern = regexp.MustCompile(`realization-(\d+)`)

// Source locates one realization on disk.
type Source struct {
	Index int
	Root  string
}

// Enumerator lists the realizations of an ensemble.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Source, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context) ([]Source, error)

// Enumerate implements Enumerator.
func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]Source, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx)
}

// GlobEnumerator matches directories against a filepath.Glob pattern and
// reads the index from each match with IndexPattern.
type GlobEnumerator struct {
	Pattern string
	// IndexPattern must have one capture group holding the index. Nil uses
	// DefaultIndexPattern.
	IndexPattern *regexp.Regexp
}

// DirEnumerator lists the realization-* directories directly below root.
func DirEnumerator(root string) GlobEnumerator {
	return GlobEnumerator{Pattern: filepath.Join(root, "realization-*")}
}

// Enumerate implements Enumerator. Matches that are not directories or carry
// no index are skipped. Sources are ordered by index.
func (g GlobEnumerator) Enumerate(ctx context.Context) ([]Source, error) {
	matches, err := filepath.Glob(g.Pattern)
	if err != nil {
		return nil, fmt.Errorf("ensemble: glob %q: %w", g.Pattern, err)
	}
	pattern := g.IndexPattern
	if pattern == nil {
		pattern = DefaultIndexPattern
	}
	seen := map[int]string{}
	var out []Source
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		groups := pattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			continue
		}
		index, err := strconv.Atoi(groups[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[index]; ok {
			return nil, fmt.Errorf("ensemble: %w: %d at %s and %s", ErrDuplicateIndex, index, prev, match)
		}
		seen[index] = match
		out = append(out, Source{Index: index, Root: match})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
