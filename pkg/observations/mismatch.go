package observations

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

// Mismatch table columns.
const (
	ColumnObsType   = "OBSTYPE"
	ColumnObsKey    = "OBSKEY"
	ColumnLabel     = "LABEL"
	ColumnObsIndex  = "OBSINDEX"
	ColumnMismatch  = "MISMATCH"
	ColumnL1        = "L1"
	ColumnL2        = "L2"
	ColumnSimValue  = "SIMVALUE"
	ColumnObsValue  = "OBSVALUE"
	ColumnMeasError = "MEASERROR"
	ColumnSign      = "SIGN"
)

// zeroErrorLimit is the measurement error below which Misfit refuses to
// divide.
const zeroErrorLimit = 1e-7

// Row is the mismatch of one observation for one realization. smry units
// produce a row per observed date, the other categories one row per unit.
type Row struct {
	Real     int
	Category Category
	Key      string
	// Date is zero for categories without a time axis.
	Date time.Time
	// Label is the optional label of a smry point.
	Label string
	// ObsIndex is the position of a smry point within its unit, 0 for the
	// other categories.
	ObsIndex int
	// Mismatch is simulated minus observed. For smryh it is the sum over
	// the compared dates.
	Mismatch  float64
	L1        float64
	L2        float64
	SimValue  float64
	ObsValue  float64
	MeasError float64
	Sign      int
}

// Result holds mismatch rows ordered by realization and then by the order
// of the observation set.
type Result struct {
	Rows []Row
}

// Dataset renders the result as a table led by REAL.
func (r *Result) Dataset() (*dataset.Dataset, error) {
	n := len(r.Rows)
	var (
		reals    = make([]float64, n)
		types    = make([]string, n)
		keys     = make([]string, n)
		dates    = make([]time.Time, n)
		labels   = make([]string, n)
		obsIndex = make([]float64, n)
		mismatch = make([]float64, n)
		l1       = make([]float64, n)
		l2       = make([]float64, n)
		sim      = make([]float64, n)
		obs      = make([]float64, n)
		errs     = make([]float64, n)
		signs    = make([]float64, n)
	)
	for i, row := range r.Rows {
		reals[i] = float64(row.Real)
		types[i] = string(row.Category)
		keys[i] = row.Key
		dates[i] = row.Date
		labels[i] = row.Label
		obsIndex[i] = float64(row.ObsIndex)
		mismatch[i] = row.Mismatch
		l1[i] = row.L1
		l2[i] = row.L2
		sim[i] = row.SimValue
		obs[i] = row.ObsValue
		errs[i] = row.MeasError
		signs[i] = float64(row.Sign)
	}
	return dataset.NewTable(
		dataset.FloatColumn(dataset.RealColumn, reals...),
		dataset.StringColumn(ColumnObsType, types...),
		dataset.StringColumn(ColumnObsKey, keys...),
		dataset.TimeColumn(dataset.DateColumn, dates...),
		dataset.StringColumn(ColumnLabel, labels...),
		dataset.FloatColumn(ColumnObsIndex, obsIndex...),
		dataset.FloatColumn(ColumnMismatch, mismatch...),
		dataset.FloatColumn(ColumnL1, l1...),
		dataset.FloatColumn(ColumnL2, l2...),
		dataset.FloatColumn(ColumnSimValue, sim...),
		dataset.FloatColumn(ColumnObsValue, obs...),
		dataset.FloatColumn(ColumnMeasError, errs...),
		dataset.FloatColumn(ColumnSign, signs...),
	)
}

// Option configures Mismatch.
type Option func(*config)

type config struct {
	workers int
}

// WithWorkers bounds the number of realizations scored concurrently.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		cfg.workers = n
	}
}

// Mismatch scores every realization of ens. Realizations are processed
// concurrently; rows come back in index order. Observations a realization
// has no data for are left out and reported.
func (s *Set) Mismatch(ctx context.Context, ens *ensemble.Ensemble, opts ...Option) (*Result, diag.Diagnostics, error) {
	if ens == nil {
		return nil, nil, fmt.Errorf("observations: mismatch: ensemble is nil")
	}
	cfg := config{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}

	members := ens.Realizations()
	rows := make([][]Row, len(members))
	diags := make([]diag.Diagnostics, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i, r := range members {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i], diags[i] = s.MismatchRealization(r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("observations: mismatch %s: %w", ens.Name(), err)
	}

	result := &Result{}
	var all diag.Diagnostics
	for i := range members {
		result.Rows = append(result.Rows, rows[i]...)
		all = append(all, diags[i]...)
	}
	return result, all, nil
}

// MismatchRealization scores one realization.
func (s *Set) MismatchRealization(r ensemble.Realization) ([]Row, diag.Diagnostics) {
	var (
		rows  []Row
		diags diag.Diagnostics
	)
	index := r.Index()
	skip := func(err error, key string) {
		diags = diags.Add(diag.New(err, "observation ignored").ForKey(key).ForIndex(index))
	}

	for _, unit := range s.Txt {
		ds, err := r.Get(unit.LocalPath)
		if err != nil {
			skip(err, unit.LocalPath)
			continue
		}
		sim, err := ds.Float(unit.Key, 0)
		if err != nil {
			skip(err, unit.LocalPath)
			continue
		}
		rows = append(rows, pointRow(index, Txt, unit.LocalPath+"/"+unit.Key, time.Time{}, sim, unit.Value, 1))
	}

	for _, unit := range s.Scalar {
		ds, err := r.Get(unit.Key)
		if err != nil {
			skip(err, unit.Key)
			continue
		}
		sim, err := ds.Float(dataset.ScalarColumn, 0)
		if err != nil {
			skip(err, unit.Key)
			continue
		}
		rows = append(rows, pointRow(index, Scalar, unit.Key, time.Time{}, sim, unit.Value, 1))
	}

	for _, unit := range s.Smryh {
		row, err := historyRow(r, unit)
		if err != nil {
			skip(err, unit.Key)
			continue
		}
		rows = append(rows, row)
	}

	for _, unit := range s.Smry {
		for pos, point := range unit.Observations {
			sim, err := simulatedAt(r, unit.Key, unit.TimeIndex, point.Date)
			if err != nil {
				skip(err, unit.Key)
				continue
			}
			row := pointRow(index, Smry, unit.Key, point.Date, sim, point.Value, point.Error)
			row.Label = point.Label
			row.ObsIndex = pos
			rows = append(rows, row)
		}
	}
	return rows, diags
}

func pointRow(real int, category Category, key string, date time.Time, sim, obs, measErr float64) Row {
	mismatch := sim - obs
	return Row{
		Real:      real,
		Category:  category,
		Key:       key,
		Date:      date,
		Mismatch:  mismatch,
		L1:        math.Abs(mismatch),
		L2:        mismatch * mismatch,
		SimValue:  sim,
		ObsValue:  obs,
		MeasError: measErr,
		Sign:      sign(mismatch),
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// simulatedAt reads vector key at date. Without a time index the vector is
// interpolated at the date itself; otherwise it is resampled to the index
// and the grid date closest to date is read.
func simulatedAt(r ensemble.Realization, key, timeIndex string, date time.Time) (float64, error) {
	index := timeseries.Explicit(date)
	if timeIndex != "" {
		parsed, err := timeseries.ParseTimeIndex(timeIndex)
		if err != nil {
			return math.NaN(), err
		}
		index = parsed
	}
	ds, _, err := r.Summary([]string{key}, index)
	if err != nil {
		return math.NaN(), err
	}
	if !ds.Has(key) || ds.Len() == 0 {
		return math.NaN(), fmt.Errorf("%w: %s at %s", ensemble.ErrDataNotFound, key, dataset.FormatTime(date))
	}
	dates, _ := ds.Column(dataset.DateColumn)
	row := nearest(dates.Times, date)
	value, err := ds.Float(key, row)
	if err != nil {
		return math.NaN(), err
	}
	if math.IsNaN(value) {
		return math.NaN(), fmt.Errorf("%w: %s missing at %s", ensemble.ErrDataNotFound, key, dataset.FormatTime(date))
	}
	return value, nil
}

func nearest(times []time.Time, t time.Time) int {
	best, bestDist := 0, time.Duration(math.MaxInt64)
	for i, candidate := range times {
		dist := candidate.Sub(t)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// historyRow compares a vector with its history vector over the grid of the
// unit's time index: the mismatch and L1 are summed, L2 is the root of the
// summed squares.
func historyRow(r ensemble.Realization, unit SmryhUnit) (Row, error) {
	index := timeseries.TimeIndex{Frequency: timeseries.Raw}
	if unit.TimeIndex != "" {
		parsed, err := timeseries.ParseTimeIndex(unit.TimeIndex)
		if err != nil {
			return Row{}, err
		}
		index = parsed
	}
	ds, _, err := r.Summary([]string{unit.Key, unit.HistVec}, index)
	if err != nil {
		return Row{}, err
	}
	if !ds.Has(unit.Key) || !ds.Has(unit.HistVec) || ds.Len() == 0 {
		return Row{}, fmt.Errorf("%w: %s and %s", ensemble.ErrDataNotFound, unit.Key, unit.HistVec)
	}
	sim, _ := ds.Column(unit.Key)
	hist, _ := ds.Column(unit.HistVec)
	var sum, l1, squares float64
	for i := range sim.Floats {
		d := sim.Floats[i] - hist.Floats[i]
		if math.IsNaN(d) {
			continue
		}
		sum += d
		l1 += math.Abs(d)
		squares += d * d
	}
	return Row{
		Real:      r.Index(),
		Category:  Smryh,
		Key:       unit.Key,
		Mismatch:  sum,
		L1:        l1,
		L2:        math.Sqrt(squares),
		SimValue:  math.NaN(),
		ObsValue:  math.NaN(),
		MeasError: 1,
		Sign:      sign(sum),
	}, nil
}

// Misfit sums L2 divided by the squared measurement error over every
// mismatch row of r. A measurement error of zero fails with ErrZeroError
// unless defaultErrors replaces it with 1.
func (s *Set) Misfit(r ensemble.Realization, defaultErrors bool) (float64, error) {
	rows, _ := s.MismatchRealization(r)
	var misfit float64
	for _, row := range rows {
		measErr := row.MeasError
		if measErr < zeroErrorLimit {
			if !defaultErrors {
				return math.NaN(), fmt.Errorf("%w: %s %s", ErrZeroError, row.Category, row.Key)
			}
			measErr = 1
		}
		misfit += row.L2 / (measErr * measErr)
	}
	return misfit, nil
}

// LoadSummary adds a smry unit built from vector key of r resampled to
// index, with errorValue as the error of every point. It is typically used
// with an aggregated realization to rank members by similarity.
func (s *Set) LoadSummary(r ensemble.Realization, key string, index timeseries.TimeIndex, errorValue float64) error {
	ds, _, err := r.Summary([]string{key}, index)
	if err != nil {
		return fmt.Errorf("observations: load summary %s: %w", key, err)
	}
	values, ok := ds.Column(key)
	if !ok {
		return fmt.Errorf("observations: load summary %s: %w", key, ensemble.ErrDataNotFound)
	}
	dates, _ := ds.Column(dataset.DateColumn)
	unit := SmryUnit{
		Key:     key,
		Comment: fmt.Sprintf("virtual observation unit constructed from %s", describe(r)),
	}
	for i, v := range values.Floats {
		if math.IsNaN(v) {
			continue
		}
		unit.Observations = append(unit.Observations, Point{Date: dates.Times[i], Value: v, Error: errorValue})
	}
	s.Smry = append(s.Smry, unit)
	return nil
}

func describe(r ensemble.Realization) string {
	if d := r.Description(); d != "" {
		return d
	}
	return fmt.Sprintf("realization-%d", r.Index())
}

func validTimeIndex(value string) error {
	if value == "" {
		return nil
	}
	_, err := timeseries.ParseTimeIndex(value)
	return err
}
