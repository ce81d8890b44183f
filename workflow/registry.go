package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registry caches workflow definitions by name and loads them on demand from
// a definitions directory. Definitions are immutable once loaded; many
// sessions share one Definition read-only.
type Registry struct {
	basePath string

	mu    sync.Mutex
	cache map[string]*Definition
}

// NewRegistry creates a registry backed by the given directory.
func NewRegistry(basePath string) *Registry {
	return &Registry{
		basePath: basePath,
		cache:    make(map[string]*Definition),
	}
}

// Register adds a pre-built definition to the cache. Primarily for tests and
// programmatic setup.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[def.Name] = def
}

// Resolve returns the definition with the given name, loading it from disk
// if it is not already resident.
func (r *Registry) Resolve(name string) (*Definition, error) {
	r.mu.Lock()
	if def, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return def, nil
	}
	r.mu.Unlock()

	path, err := r.findFile(name)
	if err != nil {
		return nil, err
	}

	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if def.Name != name {
		return nil, fmt.Errorf("workflow file %s declares name %q, expected %q", path, def.Name, name)
	}

	r.mu.Lock()
	r.cache[name] = def
	r.mu.Unlock()
	return def, nil
}

// findFile searches the base path for a definition file matching the name.
func (r *Registry) findFile(name string) (string, error) {
	patterns := []string{
		fmt.Sprintf("%s.yaml", name),
		fmt.Sprintf("%s.yml", name),
	}
	for _, pattern := range patterns {
		path := filepath.Join(r.basePath, pattern)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no workflow definition file found for %q in %s", name, r.basePath)
}
