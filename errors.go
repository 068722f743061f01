package ensemble

import (
	"errors"

	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/stats"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

var (
	ErrKeyNotFound      = dataset.ErrKeyNotFound
	ErrAmbiguousKey     = dataset.ErrAmbiguousKey
	ErrOutOfRange       = timeseries.ErrOutOfRange
	ErrInvalidFrequency = timeseries.ErrInvalidFrequency
	ErrInvalidStatistic = stats.ErrInvalidStatistic

	ErrEmptyIntersection = errors.New("ensemble: empty intersection")
	ErrDataNotFound      = errors.New("ensemble: data not found")
	ErrOperandMismatch   = errors.New("ensemble: cannot combine realizations with ensembles")
	ErrDetachedLoad      = errors.New("ensemble: detached realization cannot load from disk")
	ErrDuplicateIndex    = errors.New("ensemble: duplicate realization index")
	ErrNoNumericData     = errors.New("ensemble: dataset has no numeric data")
	ErrColumnDropped     = errors.New("ensemble: column dropped")
	ErrKeyExists         = errors.New("ensemble: key already exists")
	ErrRealizationPanic  = errors.New("ensemble: realization panicked")
	ErrDuplicateEnsemble = errors.New("ensemble: duplicate ensemble name")
)
