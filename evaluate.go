package ensemble

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

var ErrNoEvaluator = errors.New("ensemble: evaluator not configured")

// MatchRows evaluates expr against every row of ds and reports which rows
// it holds for. The expression must produce a boolean.
func MatchRows(key string, ds *dataset.Dataset, expr string, opts ...Option) ([]bool, error) {
	cfg := applyOptions(opts)
	return cfg.matchRows(key, nil, ds, expr)
}

func (c config) matchRows(key string, index *int, ds *dataset.Dataset, expr string) ([]bool, error) {
	if expr == "" {
		return nil, fmt.Errorf("ensemble: expression must not be empty")
	}
	evaluator, err := c.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	matches, evalErr := evaluateRows(evaluator, engine, key, index, ds, expr)
	c.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Key:      key,
		Rows:     ds.Len(),
		Duration: time.Since(start),
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return matches, nil
}

func evaluateRows(evaluator Evaluator, engine, key string, index *int, ds *dataset.Dataset, expr string) ([]bool, error) {
	rule, err := evaluator.Compile(expr)
	if err != nil {
		return nil, wrapEvaluationError(engine, expr, key, err)
	}
	now := time.Now()
	matches := make([]bool, ds.Len())
	for i := range matches {
		ctx := RuleContext{Row: ds.RawRow(i), Now: &now, Key: key, Index: index}
		value, err := rule.Evaluate(ctx)
		if err != nil {
			return nil, wrapEvaluationError(engine, expr, key, err)
		}
		ok, isBool := value.(bool)
		if !isBool {
			return nil, wrapEvaluationError(engine, expr, key, fmt.Errorf("row %d: predicate returned %T, want bool", i, value))
		}
		matches[i] = ok
	}
	return matches, nil
}

func (c config) resolveEvaluator() (Evaluator, error) {
	if c.evaluator != nil {
		return c.evaluator, nil
	}
	cache := c.programCache
	if cache == nil {
		cache = NewProgramCache()
	}
	registry := BuiltinFunctions().Merge(nil)
	if c.functions != nil {
		registry = c.functions.Merge(registry)
	}
	evaluator := NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry))
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return evaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if name := jsEngineName(e); name != "" {
			return name
		}
		return "custom"
	}
}
