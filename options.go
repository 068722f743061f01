package ensemble

import (
	"runtime"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

var defaultWorkers = runtime.GOMAXPROCS(0)

// WithEvaluator configures the engine used for row predicates.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithParser replaces the parser used by disk-backed realizations.
func WithParser(parser dataset.Parser) Option {
	return func(cfg *config) {
		cfg.parser = parser
	}
}

// WithWorkers bounds the number of realizations processed concurrently by
// bulk operations. Values below one fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		cfg.workers = n
	}
}

// WithOptions bundles opts into a single option.
func WithOptions(opts ...Option) Option {
	return func(cfg *config) {
		for _, opt := range opts {
			if opt != nil {
				opt(cfg)
			}
		}
	}
}

// WithKeyFilter restricts combinations to dataset keys matching one of
// patterns. A pattern matches anywhere in the key and may use * and ?.
func WithKeyFilter(patterns ...string) Option {
	return func(cfg *config) {
		cfg.keyFilter = append(cfg.keyFilter, patterns...)
	}
}

// WithName names the ensemble produced by EvaluateEnsemble. It defaults to
// the rendered expression.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}
