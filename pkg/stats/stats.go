// Package stats parses statistic names and reduces samples to a single
// value. Percentile names follow the reservoir convention where p10 is the
// high outcome.
package stats

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidStatistic is returned for statistic names outside the grammar.
var ErrInvalidStatistic = errors.New("stats: invalid statistic")

// Kind enumerates the supported reductions.
type Kind int

const (
	Mean Kind = iota
	Median
	Min
	Max
	Std
	Var
	Percentile
)

var percentilePattern = regexp.MustCompile(`^p(\d\d)$`)

// Statistic is a parsed statistic name.
type Statistic struct {
	Name string
	Kind Kind
	// Quantile is the statistical quantile in [0,1] used by Percentile.
	Quantile float64
}

// Parse validates name. pXX is accepted for XX in 00..99 and is mapped to the
// statistical quantile (100-XX)/100, so p10 is the 90th percentile.
func Parse(name string) (Statistic, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "mean":
		return Statistic{Name: normalized, Kind: Mean}, nil
	case "median":
		return Statistic{Name: normalized, Kind: Median, Quantile: 0.5}, nil
	case "min":
		return Statistic{Name: normalized, Kind: Min}, nil
	case "max":
		return Statistic{Name: normalized, Kind: Max}, nil
	case "std":
		return Statistic{Name: normalized, Kind: Std}, nil
	case "var":
		return Statistic{Name: normalized, Kind: Var}, nil
	}
	match := percentilePattern.FindStringSubmatch(normalized)
	if match == nil {
		return Statistic{}, fmt.Errorf("%w: %q", ErrInvalidStatistic, name)
	}
	xx, err := strconv.Atoi(match[1])
	if err != nil {
		return Statistic{}, fmt.Errorf("%w: %q", ErrInvalidStatistic, name)
	}
	return Statistic{Name: normalized, Kind: Percentile, Quantile: float64(100-xx) / 100}, nil
}

// MustParse is Parse for names known to be valid.
func MustParse(name string) Statistic {
	s, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Statistic) String() string {
	return s.Name
}

// Compute reduces values, ignoring NaN. An empty sample yields NaN.
func (s Statistic) Compute(values []float64) float64 {
	sample := finite(values)
	if len(sample) == 0 {
		return math.NaN()
	}
	switch s.Kind {
	case Mean:
		return stat.Mean(sample, nil)
	case Std:
		if len(sample) < 2 {
			return math.NaN()
		}
		return stat.StdDev(sample, nil)
	case Var:
		if len(sample) < 2 {
			return math.NaN()
		}
		return stat.Variance(sample, nil)
	case Min:
		sort.Float64s(sample)
		return sample[0]
	case Max:
		sort.Float64s(sample)
		return sample[len(sample)-1]
	case Median, Percentile:
		sort.Float64s(sample)
		return Quantile(s.Quantile, sample)
	}
	return math.NaN()
}

// Quantile returns the q-quantile of an ascending sample using linear
// interpolation between the closest ranks, h = (n-1)q.
func Quantile(q float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
