// Package role defines the minimal Role interface every agent worker
// implements, and the Runner supervisor that owns its lifecycle, per
// spec.md §4.H. The split mirrors the teacher's BaseService/AddTickerWorker
// pattern: a base struct owns the loop and stop handling, a role-specific
// callback supplies the work.
package role

import (
	"context"
)

// Role is the contract a worker implements. Main performs one iteration of
// work and should return promptly so Runner can observe cancellation
// between calls; it is invoked repeatedly by Runner's loop.
type Role interface {
	// Main performs one iteration of the role's work.
	Main(ctx context.Context) error
	// ShortName returns the role's unique identifier (e.g. "poller").
	ShortName() string
}

// Configurable is implemented by roles that accept live config updates;
// the agent Supervisor calls SetConfig on a role that is still running
// after policy reconciliation, passing the role's new RoleConfigs entry.
type Configurable interface {
	SetConfig(cfg map[string]interface{})
}
