// Package diag carries non-fatal issues raised while loading, combining,
// aggregating or resampling data. Operations return them alongside their
// results instead of writing to a process-wide logger.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Diagnostic describes one non-fatal issue scoped to a dataset key, column
// and realization index where relevant.
type Diagnostic struct {
	Err     error
	Key     string
	Column  string
	Index   int
	Indexed bool
	Message string
}

// New builds a diagnostic wrapping err.
func New(err error, message string) Diagnostic {
	return Diagnostic{Err: err, Message: message}
}

// ForKey scopes d to key.
func (d Diagnostic) ForKey(key string) Diagnostic {
	d.Key = key
	return d
}

// ForColumn scopes d to column.
func (d Diagnostic) ForColumn(column string) Diagnostic {
	d.Column = column
	return d
}

// ForIndex scopes d to a realization index.
func (d Diagnostic) ForIndex(index int) Diagnostic {
	d.Index = index
	d.Indexed = true
	return d
}

func (d Diagnostic) Error() string {
	parts := make([]string, 0, 4)
	if d.Indexed {
		parts = append(parts, fmt.Sprintf("realization=%d", d.Index))
	}
	if d.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%q", d.Key))
	}
	if d.Column != "" {
		parts = append(parts, fmt.Sprintf("column=%q", d.Column))
	}
	msg := d.Message
	if d.Err != nil {
		if msg == "" {
			msg = d.Err.Error()
		} else {
			msg = d.Err.Error() + ": " + msg
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return strings.Join(parts, " ") + ": " + msg
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnostics is an ordered list of issues reported by one call.
type Diagnostics []Diagnostic

// Add appends d and returns the extended list.
func (ds Diagnostics) Add(d Diagnostic) Diagnostics {
	return append(ds, d)
}

// Has reports whether any diagnostic matches target through errors.Is.
func (ds Diagnostics) Has(target error) bool {
	for _, d := range ds {
		if errors.Is(d, target) {
			return true
		}
	}
	return false
}

// Matching returns the diagnostics that match target.
func (ds Diagnostics) Matching(target error) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if errors.Is(d, target) {
			out = append(out, d)
		}
	}
	return out
}

// WithIndex scopes every diagnostic that is not already indexed.
func (ds Diagnostics) WithIndex(index int) Diagnostics {
	out := make(Diagnostics, len(ds))
	for i, d := range ds {
		if !d.Indexed {
			d = d.ForIndex(index)
		}
		out[i] = d
	}
	return out
}

// WithKey scopes every diagnostic that has no key yet.
func (ds Diagnostics) WithKey(key string) Diagnostics {
	out := make(Diagnostics, len(ds))
	for i, d := range ds {
		if d.Key == "" {
			d.Key = key
		}
		out[i] = d
	}
	return out
}

// Err joins all diagnostics into a single error, or nil when empty.
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}
