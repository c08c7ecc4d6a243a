package tenant

import (
	"sync"
)

// PoolLoader produces the credential pool.
type PoolLoader func() (Pool, error)

// StaticPool returns a loader for an in-memory pool.
func StaticPool(p Pool) PoolLoader {
	return func() (Pool, error) { return p, nil }
}

// FilePool returns a loader reading path, overlaid with tenant variables found
// in environ. A missing file is tolerated when environ defines at least one block.
func FilePool(path string, environ []string) PoolLoader {
	return func() (Pool, error) {
		env := PoolFromEnv(environ)
		pool, err := LoadPoolFile(path)
		if err != nil {
			if len(env) > 0 {
				return env, nil
			}
			return nil, err
		}
		return pool.Merge(env), nil
	}
}

// Registry is the process-wide list of tenant contexts. The pool is read once,
// on first use; configuration changes need a restart.
type Registry struct {
	load PoolLoader

	once     sync.Once
	contexts []Context
	byKey    map[string]int
	err      error
}

// NewRegistry creates a Registry backed by load.
func NewRegistry(load PoolLoader) *Registry {
	return &Registry{load: load}
}

func (r *Registry) init() {
	r.once.Do(func() {
		pool, err := r.load()
		if err != nil {
			r.err = err
			return
		}
		r.contexts = BuildContexts(pool)
		r.byKey = make(map[string]int, len(r.contexts))
		for i, c := range r.contexts {
			r.byKey[c.Key] = i
		}
	})
}

// List returns every context, sorted by group then section label.
func (r *Registry) List() ([]Context, error) {
	r.init()
	if r.err != nil {
		return nil, r.err
	}
	return append([]Context(nil), r.contexts...), nil
}

// GetByKey returns the context with the given block key.
func (r *Registry) GetByKey(key string) (Context, bool) {
	r.init()
	i, ok := r.byKey[key]
	if !ok {
		return Context{}, false
	}
	return r.contexts[i], true
}
