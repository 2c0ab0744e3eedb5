package store

import "sync"

// Registry is the set of unit paths currently open for writing in this
// process. It keeps two local writers off the same unit even when the
// backend's native lock would let the same process in twice.
type Registry struct {
	mu    sync.Locker
	paths map[string]struct{}
}

// DefaultRegistry is shared by every store that does not set Options.Registry.
var DefaultRegistry = NewRegistry(&sync.Mutex{})

// NewRegistry returns an empty registry guarded by mu. A nil mu disables
// locking, for single-goroutine use.
func NewRegistry(mu sync.Locker) *Registry {
	if mu == nil {
		mu = noopLocker{}
	}
	return &Registry{mu: mu, paths: make(map[string]struct{})}
}

// reserve claims path, reporting false if another writer holds it.
func (r *Registry) reserve(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.paths[path]; held {
		return false
	}
	r.paths[path] = struct{}{}
	return true
}

func (r *Registry) release(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()
}

// Held reports whether path is open for writing.
func (r *Registry) Held(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.paths[path]
	return held
}

// Len returns the number of held paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
