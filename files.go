package ensemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// FindFiles globs patterns below the realization root and lists the regular
// files found in FULLPATH, FILETYPE, LOCALPATH and BASENAME columns. A base
// name holding "--" is split into COMP1, COMP2, ... columns, the extension
// removed from the last component.
func (r *DiskRealization) FindFiles(patterns ...string) (*dataset.Dataset, error) {
	var (
		full, types, local, base []string
		comps                    [][]string
	)
	seen := map[string]bool{}
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(r.root, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("ensemble: find files %q: %w", p, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("ensemble: find files %q: %w", p, err)
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			rel, err := filepath.Rel(r.root, match)
			if err != nil {
				return nil, fmt.Errorf("ensemble: find files %q: %w", p, err)
			}
			name := filepath.Base(match)
			ext := filepath.Ext(name)
			full = append(full, abs)
			types = append(types, strings.TrimPrefix(ext, "."))
			local = append(local, filepath.ToSlash(rel))
			base = append(base, name)
			var parts []string
			if stem := strings.TrimSuffix(name, ext); strings.Contains(stem, "--") {
				parts = strings.Split(stem, "--")
			}
			comps = append(comps, parts)
		}
	}

	cols := []*dataset.Column{
		dataset.StringColumn("FULLPATH", full...),
		dataset.StringColumn("FILETYPE", types...),
		dataset.StringColumn("LOCALPATH", local...),
		dataset.StringColumn("BASENAME", base...),
	}
	width := 0
	for _, c := range comps {
		width = max(width, len(c))
	}
	for i := 0; i < width; i++ {
		values := make([]string, len(comps))
		for row, c := range comps {
			if i < len(c) {
				values[row] = c[i]
			}
		}
		cols = append(cols, dataset.StringColumn(fmt.Sprintf("COMP%d", i+1), values...))
	}
	return dataset.NewTable(cols...)
}

// FindFiles runs FindFiles on every disk-backed member and stacks the
// results with a leading REAL column. Detached members have no files and
// are skipped.
func (e *Ensemble) FindFiles(patterns ...string) (*dataset.Dataset, Diagnostics, error) {
	var (
		parts []*dataset.Dataset
		diags Diagnostics
	)
	for _, r := range e.Realizations() {
		disk, ok := r.(*DiskRealization)
		if !ok {
			continue
		}
		ds, err := disk.FindFiles(patterns...)
		if err != nil {
			diags = diags.Add(diag.New(err, "realization skipped").ForIndex(r.Index()))
			continue
		}
		parts = append(parts, withReal(ds, r.Index()))
	}
	out, err := dataset.Concat(parts...)
	if err != nil {
		return nil, e.cfg.report(diags), err
	}
	return out, e.cfg.report(diags), nil
}
