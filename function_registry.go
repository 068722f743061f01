package ensemble

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Function is a helper callable from row predicates.
type Function func(args ...any) (any, error)

// FunctionRegistry stores predicate helpers keyed by lower-cased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// BuiltinFunctions returns a registry holding the helpers every predicate
// can use: isnan(x), missing(x) and year(t).
func BuiltinFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("isnan", func(args ...any) (any, error) {
		f, err := floatArg("isnan", args)
		if err != nil {
			return nil, err
		}
		return math.IsNaN(f), nil
	})
	_ = r.Register("missing", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("ensemble: missing expects 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return true, nil
		case float64:
			return math.IsNaN(v), nil
		case string:
			return v == "", nil
		case time.Time:
			return v.IsZero(), nil
		}
		return false, nil
	})
	_ = r.Register("year", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("ensemble: year expects 1 argument, got %d", len(args))
		}
		t, ok := args[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("ensemble: year expects a time, got %T", args[0])
		}
		return t.Year(), nil
	})
	return r
}

func floatArg(name string, args []any) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("ensemble: %s expects 1 argument, got %d", name, len(args))
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("ensemble: %s expects a number, got %T", name, args[0])
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("ensemble: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("ensemble: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("ensemble: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Merge copies the functions of other that r does not define yet.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) *FunctionRegistry {
	out := r.Clone()
	if out == nil {
		out = NewFunctionRegistry()
	}
	if other == nil {
		return out
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	for name, fn := range other.functions {
		if _, exists := out.functions[name]; !exists {
			out.functions[name] = fn
		}
	}
	return out
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("ensemble: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("ensemble: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry exposes the functions of registry to row predicates.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for row predicates.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
