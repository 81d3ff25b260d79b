package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// Registry maps function names to task callables. Tasks that reference
// their work by name are resolved here at dispatch time.
type Registry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	funcs  map[string]model.TaskFunc
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("registry"),
		funcs:  make(map[string]model.TaskFunc),
	}
}

// Register stores fn under name. Last writer wins; re-registering a name
// is not an error.
func (r *Registry) Register(name string, fn model.TaskFunc) {
	r.mu.Lock()
	if _, exists := r.funcs[name]; exists {
		r.logger.Warn("Overwriting registered function", zap.String("name", name))
	}
	r.funcs[name] = fn
	r.mu.Unlock()

	r.logger.Debug("Function registered", zap.String("name", name))
}

// Resolve looks up a function by name.
func (r *Registry) Resolve(name string) (model.TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}
