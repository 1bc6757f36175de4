// Package connection implements the agent's process-wide, named registry
// of HTTP connections used by the management client and role inputs.
package connection

import (
	"sync"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

// Default is the reserved name for the primary console connection. It is
// immutable from role code: role.Runner.ShareConnection/UnshareConnection
// refuse to touch it.
const Default = "default"

// Connection describes a named HTTP endpoint an agent talks to.
type Connection struct {
	Name      string
	URL       string
	APIKey    string
	IgnoreTLS bool
	UserAgent string
}

// Registry is a process-wide, concurrency-safe map of name -> Connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: map[string]*Connection{}}
}

// Add registers conn under conn.Name. Fails with ErrDuplicateConnection if
// a connection with that name already exists.
func (r *Registry) Add(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[conn.Name]; exists {
		return agenterrors.ErrDuplicateConnection
	}
	r.conns[conn.Name] = conn
	return nil
}

// Remove deletes the connection with the given name. Fails with
// ErrConnectionNotExist if no such connection is registered.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[name]; !exists {
		return agenterrors.ErrConnectionNotExist
	}
	delete(r.conns, name)
	return nil
}

// Get returns the connection registered under name, or nil. An empty name
// resolves to Default.
func (r *Registry) Get(name string) *Connection {
	if name == "" {
		name = Default
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[name]
}

// BuildHTTP constructs a generic Connection without registering it.
func BuildHTTP(url, apiKey string, ignoreTLS bool, name string) *Connection {
	return &Connection{Name: name, URL: url, APIKey: apiKey, IgnoreTLS: ignoreTLS}
}

// BuildManagement constructs a Connection tagged for the management
// console's user agent and, if registerGlobally is true, registers it
// under name in r.
func (r *Registry) BuildManagement(url, apiKey string, ignoreTLS bool, name string, userAgent string, registerGlobally bool) (*Connection, error) {
	conn := &Connection{Name: name, URL: url, APIKey: apiKey, IgnoreTLS: ignoreTLS, UserAgent: userAgent}
	if registerGlobally {
		if err := r.Add(conn); err != nil {
			return nil, err
		}
	}
	return conn, nil
}
