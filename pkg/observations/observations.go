// Package observations scores realizations against measured data.
//
// An observation set groups observation units by category. A smry unit is a
// summary vector observed at a list of dates, smryh compares a vector with its
// history vector, txt and scalar compare single values read from datasets.
package observations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-ensemble/internal/hydrate"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// Category names a kind of observation unit.
type Category string

const (
	Smry   Category = "smry"
	Smryh  Category = "smryh"
	Txt    Category = "txt"
	Scalar Category = "scalar"
)

var (
	ErrUnsupportedCategory = errors.New("observations: unsupported category")
	ErrMalformedUnit       = errors.New("observations: malformed observation unit")
	ErrZeroError           = errors.New("observations: zero measurement error")
)

// Point is one observed value of a summary vector.
type Point struct {
	Date  time.Time `json:"date" yaml:"date"`
	Value float64   `json:"value" yaml:"value"`
	Error float64   `json:"error" yaml:"error"`
	Label string    `json:"label,omitempty" yaml:"label,omitempty"`
}

// SmryUnit observes the summary vector Key at the dates of Observations.
// TimeIndex, when set, is the frequency the simulated vector is resampled to
// before it is read at each date.
type SmryUnit struct {
	Key          string  `json:"key" yaml:"key"`
	Comment      string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	TimeIndex    string  `json:"time_index,omitempty" yaml:"time_index,omitempty"`
	Observations []Point `json:"observations" yaml:"observations"`
}

// SmryhUnit compares the vector Key with its history vector HistVec.
type SmryhUnit struct {
	Key       string `json:"key" yaml:"key"`
	HistVec   string `json:"histvec" yaml:"histvec"`
	TimeIndex string `json:"time_index,omitempty" yaml:"time_index,omitempty"`
}

// TxtUnit observes the value under Key in the key-value dataset LocalPath.
type TxtUnit struct {
	LocalPath string  `json:"localpath" yaml:"localpath"`
	Key       string  `json:"key" yaml:"key"`
	Value     float64 `json:"value" yaml:"value"`
}

// ScalarUnit observes the scalar dataset Key.
type ScalarUnit struct {
	Key   string  `json:"key" yaml:"key"`
	Value float64 `json:"value" yaml:"value"`
}

// Set is a cleaned observation set. It is not modified by mismatch
// computations.
type Set struct {
	Smry   []SmryUnit   `yaml:"smry,omitempty"`
	Smryh  []SmryhUnit  `yaml:"smryh,omitempty"`
	Txt    []TxtUnit    `yaml:"txt,omitempty"`
	Scalar []ScalarUnit `yaml:"scalar,omitempty"`
}

// Len returns the number of observation units.
func (s *Set) Len() int {
	return len(s.Smry) + len(s.Smryh) + len(s.Txt) + len(s.Scalar)
}

// Empty reports whether the set holds no units.
func (s *Set) Empty() bool {
	return s.Len() == 0
}

// Categories lists the categories holding at least one unit.
func (s *Set) Categories() []Category {
	var out []Category
	if len(s.Smry) > 0 {
		out = append(out, Smry)
	}
	if len(s.Smryh) > 0 {
		out = append(out, Smryh)
	}
	if len(s.Txt) > 0 {
		out = append(out, Txt)
	}
	if len(s.Scalar) > 0 {
		out = append(out, Scalar)
	}
	return out
}

// Load reads an observation set from a YAML file.
func Load(path string) (*Set, diag.Diagnostics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("observations: read %q: %w", path, err)
	}
	var mapping map[string]any
	if err := yaml.Unmarshal(raw, &mapping); err != nil {
		return nil, nil, fmt.Errorf("observations: parse %q: %w", path, err)
	}
	return fromMapping(path, mapping)
}

// FromMapping builds a set from a decoded mapping of category to unit list.
// Unsupported categories and malformed units are left out and reported; an
// empty set is valid.
func FromMapping(mapping map[string]any) (*Set, diag.Diagnostics, error) {
	return fromMapping("mapping", mapping)
}

func fromMapping(source string, mapping map[string]any) (*Set, diag.Diagnostics, error) {
	set := &Set{}
	var diags diag.Diagnostics

	categories := make([]string, 0, len(mapping))
	for name := range mapping {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	for _, name := range categories {
		units, ok := mapping[name].([]any)
		if !ok {
			diags = diags.Add(diag.New(ErrMalformedUnit, fmt.Sprintf("category %s is not a list", name)).ForKey(name))
			continue
		}
		var d diag.Diagnostics
		switch Category(name) {
		case Smry:
			set.Smry, d = decodeUnits(source, name, units, smryDecoder)
		case Smryh:
			set.Smryh, d = decodeUnits(source, name, units, smryhDecoder)
		case Txt:
			set.Txt, d = decodeUnits(source, name, units, txtDecoder)
		case Scalar:
			set.Scalar, d = decodeUnits(source, name, units, scalarDecoder)
		default:
			d = d.Add(diag.New(ErrUnsupportedCategory, "category removed").ForKey(name))
		}
		diags = append(diags, d...)
	}
	return set, diags, nil
}

func decodeUnits[T any](source, category string, units []any, decoder *hydrate.Decoder[T]) ([]T, diag.Diagnostics) {
	var (
		out   []T
		diags diag.Diagnostics
	)
	for i, raw := range units {
		mapping, ok := raw.(map[string]any)
		if !ok {
			diags = diags.Add(diag.New(ErrMalformedUnit, fmt.Sprintf("unit %d is not a mapping", i)).ForKey(category))
			continue
		}
		unit, err := decoder.Decode(hydrate.Context{Source: source, Category: category, Position: i}, mapping)
		if err != nil {
			diags = diags.Add(diag.New(fmt.Errorf("%w: %w", ErrMalformedUnit, err), "unit removed").ForKey(category))
			continue
		}
		out = append(out, unit)
	}
	return out, diags
}

var (
	smryDecoder = hydrate.NewDecoder[SmryUnit](
		hydrate.WithPreHook[SmryUnit](hydrate.NormalizeDates("date")),
		hydrate.WithPostHook[SmryUnit](func(_ hydrate.Context, u *SmryUnit) error {
			if u.Key == "" || u.Observations == nil {
				return errors.New("smry units need key and observations")
			}
			return validTimeIndex(u.TimeIndex)
		}),
	)
	smryhDecoder = hydrate.NewDecoder[SmryhUnit](
		hydrate.WithPostHook[SmryhUnit](func(_ hydrate.Context, u *SmryhUnit) error {
			if u.Key == "" || u.HistVec == "" {
				return errors.New("smryh units need key and histvec")
			}
			return validTimeIndex(u.TimeIndex)
		}),
	)
	txtDecoder = hydrate.NewDecoder[TxtUnit](
		hydrate.WithPostHook[TxtUnit](func(_ hydrate.Context, u *TxtUnit) error {
			if u.LocalPath == "" || u.Key == "" {
				return errors.New("txt units need localpath and key")
			}
			return nil
		}),
	)
	scalarDecoder = hydrate.NewDecoder[ScalarUnit](
		hydrate.WithPostHook[ScalarUnit](func(_ hydrate.Context, u *ScalarUnit) error {
			if u.Key == "" {
				return errors.New("scalar units need key")
			}
			return nil
		}),
	)
)

// YAML renders the set in the format Load reads.
func (s *Set) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("observations: encode: %w", err)
	}
	return out, nil
}

// Save writes the set to path, creating parent directories. Loading the
// file again yields the same mismatches.
func (s *Set) Save(path string) error {
	raw, err := s.YAML()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("observations: create %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("observations: write %q: %w", path, err)
	}
	return nil
}
