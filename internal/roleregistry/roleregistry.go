// Package roleregistry is the process-local plugin registry for built-in
// Role implementations (Poller, Detector, ...), populated by func init()
// in each role package, per the REDESIGN FLAGS guidance replacing the
// original's Agent._load_classes runtime discovery.
package roleregistry

import (
	"sort"
	"sync"

	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
	"github.com/reflexsoar/reflex-agent-go/internal/connection"
	"github.com/reflexsoar/reflex-agent-go/internal/eventmanager"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/management"
	"github.com/reflexsoar/reflex-agent-go/internal/role"
)

// Deps bundles the shared, agent-owned collaborators a built-in role needs
// to construct itself: the management client, the event pipeline, the
// connection registry, and a logger. Built-in role packages register a
// Factory that closes over none of these directly -- the agent supervisor
// supplies Deps at role-start time, keeping roleregistry the only place
// that needs to know every role's constructor shape.
type Deps struct {
	Client      *management.Client
	Events      *eventmanager.Manager
	Connections *connection.Registry
	Logger      *logging.Logger
	Metrics     *agentmetrics.Metrics
}

// Factory constructs a fresh Role instance bound to the given role-specific
// configuration snapshot and the agent's shared collaborators.
type Factory func(cfg map[string]interface{}, deps Deps) role.Role

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register associates shortname with factory. Intended to be called from a
// role package's func init(). Panics on a duplicate shortname.
func Register(shortname string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[shortname]; exists {
		panic("roleregistry: duplicate role " + shortname)
	}
	factories[shortname] = factory
}

// Get returns the Factory registered for shortname, or nil if none.
func Get(shortname string) Factory {
	mu.RLock()
	defer mu.RUnlock()
	return factories[shortname]
}

// Names returns the sorted list of registered role names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
