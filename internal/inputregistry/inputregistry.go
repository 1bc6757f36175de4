// Package inputregistry is the process-local plugin registry for Input
// adapters, replacing the original's runtime class discovery
// (Agent._load_classes) with compile-time registration via func init(),
// per the REDESIGN FLAGS guidance.
package inputregistry

import (
	"sort"
	"sync"

	"github.com/reflexsoar/reflex-agent-go/internal/input"
)

var (
	mu        sync.RWMutex
	factories = map[string]input.Factory{}
)

// Register associates alias (e.g. "elasticsearch") with a Factory. Intended
// to be called from an adapter package's func init(). Panics on a
// duplicate alias since that indicates two adapters were compiled in under
// the same name -- a build-time mistake, not a runtime condition to
// recover from.
func Register(alias string, factory input.Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[alias]; exists {
		panic("inputregistry: duplicate alias " + alias)
	}
	factories[alias] = factory
}

// Get returns the Factory registered for alias, or nil if none.
func Get(alias string) input.Factory {
	mu.RLock()
	defer mu.RUnlock()
	return factories[alias]
}

// Aliases returns the sorted list of registered input aliases.
func Aliases() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
