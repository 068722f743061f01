package ensemble

import (
	"time"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// RuleContext carries inputs needed when evaluating a row predicate.
type RuleContext struct {
	Row      map[string]any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	// Key names the dataset the row belongs to.
	Key string
	// Index is the realization index of the row, or nil when unknown.
	Index *int
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Row == nil {
		ctx.Row = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) scopeLabel() string {
	if ctx.Key != "" {
		return ctx.Key
	}
	return "unknown"
}

func (ctx RuleContext) indexBinding() any {
	if ctx.Index == nil {
		return nil
	}
	return *ctx.Index
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures realizations and ensembles.
type Option func(*config)

type config struct {
	evaluator     Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	logger        EvaluatorLogger
	diagnostics   DiagnosticLogger
	activityHooks activity.Hooks
	parser        dataset.Parser
	workers       int
	keyFilter     []string
	name          string
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c config) evaluatorLogger() EvaluatorLogger {
	if c.logger != nil {
		return c.logger
	}
	return noopEvaluatorLogger{}
}

func (c config) diagnosticLogger() DiagnosticLogger {
	if c.diagnostics != nil {
		return c.diagnostics
	}
	return noopDiagnosticLogger{}
}

func (c config) datasetParser() dataset.Parser {
	if c.parser != nil {
		return c.parser
	}
	return dataset.DefaultParser()
}

func (c config) workerLimit() int {
	if c.workers > 0 {
		return c.workers
	}
	return defaultWorkers
}
