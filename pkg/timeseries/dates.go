// Package timeseries resamples time-indexed datasets onto regular or explicit
// date grids and derives volumetric rates from cumulative columns.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

var (
	ErrInvalidFrequency = errors.New("timeseries: invalid frequency")
	ErrOutOfRange       = errors.New("timeseries: date outside observed range")
	ErrNoDateColumn     = errors.New("timeseries: dataset has no DATE column")
)

// Frequency is a symbolic time index.
type Frequency string

const (
	Raw     Frequency = "raw"
	Report  Frequency = "report"
	First   Frequency = "first"
	Last    Frequency = "last"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	// Custom marks an explicit list of dates.
	Custom Frequency = "custom"
)

// Regular reports whether f describes a calendar grid.
func (f Frequency) Regular() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// TimeIndex is either a symbolic frequency or an explicit list of dates.
type TimeIndex struct {
	Frequency Frequency
	Dates     []time.Time
}

// ParseTimeIndex parses a frequency mnemonic. An ISO date is accepted as a
// single explicit date.
func ParseTimeIndex(value string) (TimeIndex, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return TimeIndex{Frequency: Raw}, nil
	case Raw, Report, First, Last, Daily, Weekly, Monthly, Yearly:
		return TimeIndex{Frequency: f}, nil
	}
	if t, err := dataset.ParseTime(value); err == nil {
		return Explicit(t), nil
	}
	return TimeIndex{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
}

// MustParseTimeIndex is ParseTimeIndex for values known to be valid.
func MustParseTimeIndex(value string) TimeIndex {
	idx, err := ParseTimeIndex(value)
	if err != nil {
		panic(err)
	}
	return idx
}

// Explicit builds a time index from dates.
func Explicit(dates ...time.Time) TimeIndex {
	return TimeIndex{Frequency: Custom, Dates: Unique(dates)}
}

// IsRaw reports whether the index keeps the native time axis.
func (t TimeIndex) IsRaw() bool {
	return t.Frequency == "" || t.Frequency == Raw || t.Frequency == Report
}

func (t TimeIndex) String() string {
	if t.Frequency == Custom {
		parts := make([]string, len(t.Dates))
		for i, d := range t.Dates {
			parts[i] = dataset.FormatTime(d)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	if t.Frequency == "" {
		return string(Raw)
	}
	return string(t.Frequency)
}

// Grid resolves the index against observed dates. Regular frequencies cover
// the observed span, extended to whole periods when normalize is set.
func (t TimeIndex) Grid(observed []time.Time, normalize bool) ([]time.Time, error) {
	dates := Unique(observed)
	switch {
	case t.IsRaw():
		return dates, nil
	case t.Frequency == Custom:
		return Unique(t.Dates), nil
	case len(dates) == 0:
		return nil, nil
	case t.Frequency == First:
		return dates[:1], nil
	case t.Frequency == Last:
		return dates[len(dates)-1:], nil
	case t.Frequency.Regular():
		start, end := dates[0], dates[len(dates)-1]
		if normalize {
			start, end = Normalize(start, end, t.Frequency)
		}
		return DateRange(start, end, t.Frequency)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, t.Frequency)
}

// DateRange lists the anchor dates of freq within [start, end].
func DateRange(start, end time.Time, freq Frequency) ([]time.Time, error) {
	if !freq.Regular() {
		return nil, fmt.Errorf("%w: %q has no date range", ErrInvalidFrequency, freq)
	}
	var out []time.Time
	for d := rollForward(start.UTC(), freq); !d.After(end); d = step(d, freq) {
		out = append(out, d)
	}
	return out, nil
}

// Normalize extends [start, end] to whole periods of freq.
func Normalize(start, end time.Time, freq Frequency) (time.Time, time.Time) {
	if !freq.Regular() {
		return start, end
	}
	return rollBack(start.UTC(), freq), rollForward(end.UTC(), freq)
}

// Union merges date lists into one sorted list without duplicates.
func Union(lists ...[]time.Time) []time.Time {
	var all []time.Time
	for _, l := range lists {
		all = append(all, l...)
	}
	return Unique(all)
}

// Unique sorts dates and removes duplicates and zero values.
func Unique(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !d.IsZero() {
			out = append(out, d.UTC())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	unique := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(unique[len(unique)-1]) {
			continue
		}
		unique = append(unique, d)
	}
	return unique
}

func rollBack(t time.Time, freq Frequency) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch freq {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func rollForward(t time.Time, freq Frequency) time.Time {
	back := rollBack(t, freq)
	if back.Equal(t) {
		return back
	}
	return step(back, freq)
}

func step(t time.Time, freq Frequency) time.Time {
	switch freq {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 0, 1)
}
