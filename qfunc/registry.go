package qfunc

import "sync"

// Registry caches built kernels by variant name so element loops can look
// up a kernel once per operator instead of rebuilding it.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]*QFunction
}

// Global is the default registry.
var Global = &Registry{}

// Register stores a built kernel under its name, replacing any previous one.
func (r *Registry) Register(qf *QFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs == nil {
		r.funcs = make(map[string]*QFunction)
	}
	r.funcs[qf.Name()] = qf
}

// Lookup returns the kernel registered as name, building it from the name
// when it has not been seen before.
func (r *Registry) Lookup(name string) (*QFunction, error) {
	r.mu.RLock()
	qf, ok := r.funcs[name]
	r.mu.RUnlock()
	if ok {
		return qf, nil
	}

	v, err := ParseVariant(name)
	if err != nil {
		return nil, err
	}
	if qf, err = Build(v); err != nil {
		return nil, err
	}
	r.Register(qf)
	return qf, nil
}

// Names lists the registered kernel names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// Reset clears the registry. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs = nil
}
