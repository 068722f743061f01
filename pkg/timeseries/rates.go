package timeseries

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

var (
	ErrInvalidUnit   = errors.New("timeseries: invalid time unit")
	ErrNotCumulative = errors.New("timeseries: column is not cumulative")
)

// Unit scales volumetric rates by elapsed calendar time.
type Unit string

const (
	// PerPeriod leaves the difference per grid interval unscaled.
	PerPeriod Unit = ""
	Days      Unit = "days"
	Months    Unit = "months"
	Years     Unit = "years"
)

// ParseUnit validates a unit name.
func ParseUnit(value string) (Unit, error) {
	switch u := Unit(value); u {
	case PerPeriod, Days, Months, Years:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, value)
}

// Elapsed returns the time from a to b expressed in unit. Months and years
// count whole calendar periods and add the remaining days as a fraction of
// the month or year b falls in.
func Elapsed(a, b time.Time, unit Unit) float64 {
	switch unit {
	case Days:
		return b.Sub(a).Hours() / 24
	case Months, Years:
		months, rest := calendarDelta(a, b)
		restDays := rest.Hours() / 24
		if unit == Months {
			return float64(months) + restDays/float64(daysInMonth(b.Year(), b.Month()))
		}
		return float64(months)/12 + restDays/float64(daysInYear(b.Year()))
	}
	return 1
}

// VolumetricRates derives rates from cumulative columns by forward
// differencing on the grid of index. The rate at a date holds until the next
// date, the last row is zero. When columns is empty every cumulative column
// of ds is used. Rate columns are named through RateColumn.
func VolumetricRates(ds *dataset.Dataset, columns []string, index TimeIndex, unit Unit, opts ...Option) (*dataset.Dataset, diag.Diagnostics, error) {
	if _, err := ParseUnit(string(unit)); err != nil {
		return nil, nil, err
	}
	if len(columns) == 0 {
		for _, name := range ds.NumericNames() {
			if IsCumulative(name) {
				columns = append(columns, name)
			}
		}
	}
	var diags diag.Diagnostics
	selected := []string{dataset.DateColumn}
	rateNames := map[string]string{}
	for _, name := range columns {
		rate, ok := RateColumn(name)
		if !IsCumulative(name) || !ok {
			diags = diags.Add(diag.New(ErrNotCumulative, "no rate derived").ForColumn(name))
			continue
		}
		if !ds.Has(name) {
			diags = diags.Add(diag.New(dataset.ErrColumnNotFound, "no rate derived").ForColumn(name))
			continue
		}
		selected = append(selected, name)
		rateNames[name] = rate
	}
	subset, err := ds.Select(selected...)
	if err != nil {
		return nil, diags, err
	}
	for name := range rateNames {
		opts = append(opts, WithSemantics(name, Interpolate))
	}
	resampled, resampleDiags, err := Resample(subset, index, opts...)
	diags = append(diags, resampleDiags...)
	if err != nil {
		return nil, diags, err
	}
	if index.IsRaw() {
		// raw keeps the native row order
		if resampled, err = resampled.SortBy(dataset.DateColumn); err != nil {
			return nil, diags, err
		}
	}

	dates, _ := resampled.Column(dataset.DateColumn)
	out, err := dataset.New(dataset.Table, dataset.TimeColumn(dataset.DateColumn, dates.Times...))
	if err != nil {
		return nil, diags, err
	}
	n := len(dates.Times)
	for _, name := range selected[1:] {
		cum, ok := resampled.Column(name)
		if !ok {
			continue
		}
		rates := make([]float64, n)
		for i := 0; i+1 < n; i++ {
			delta := cum.Floats[i+1] - cum.Floats[i]
			rates[i] = delta / Elapsed(dates.Times[i], dates.Times[i+1], unit)
		}
		if err := out.Set(dataset.FloatColumn(rateNames[name], rates...)); err != nil {
			return nil, diags, err
		}
	}
	return out, diags, nil
}

func calendarDelta(a, b time.Time) (int, time.Duration) {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	for months > 0 && addMonthsClipped(a, months).After(b) {
		months--
	}
	if months < 0 {
		months = 0
	}
	return months, b.Sub(addMonthsClipped(a, months))
}

func addMonthsClipped(t time.Time, months int) time.Time {
	total := int(t.Month()) - 1 + months
	year := t.Year() + total/12
	month := time.Month(total%12 + 1)
	day := t.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
