package ensemble

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache shares a program cache between predicate evaluations.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

type memoryProgramCache struct {
	programs sync.Map
}

// NewProgramCache returns an unbounded in-memory ProgramCache safe for
// concurrent use.
func NewProgramCache() ProgramCache {
	return &memoryProgramCache{}
}

func (c *memoryProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *memoryProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}
