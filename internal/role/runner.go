package role

import (
	"context"
	"sync"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
	"github.com/reflexsoar/reflex-agent-go/internal/connection"
	"github.com/reflexsoar/reflex-agent-go/internal/eventmanager"
	"github.com/reflexsoar/reflex-agent-go/internal/input"
	"github.com/reflexsoar/reflex-agent-go/internal/inputregistry"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
)

const defaultWaitInterval = 10 * time.Second

// RunnerConfig configures a Runner's loop behavior, sourced from the
// role's entry under AgentConfig.RoleConfigs.
type RunnerConfig struct {
	// WaitInterval is the pause between Main calls. Defaults to 10s.
	WaitInterval time.Duration
	// DisableRunLoop, when true, makes Run call Main exactly once.
	DisableRunLoop bool
	// MaxLoopCount, when > 0, stops the loop after that many iterations.
	MaxLoopCount int
}

// Runner supervises one Role instance: it owns the run loop, the stop
// channel, and the role's connection registry, none of which the Role
// implementation can override -- those operations are concrete methods
// here, not on the Role interface, finalizing them at compile time (a Role
// cannot override a method it was never given). Mirrors the teacher's
// BaseService/AddTickerWorker split.
type Runner struct {
	role   Role
	cfg    RunnerConfig
	conns  *connection.Registry
	events *eventmanager.Manager
	logger *logging.Logger

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

// NewRunner constructs a Runner for r, sharing conns and events with it.
func NewRunner(r Role, cfg RunnerConfig, conns *connection.Registry, events *eventmanager.Manager, logger *logging.Logger) *Runner {
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = defaultWaitInterval
	}
	if logger == nil {
		logger = logging.NewFromEnv(r.ShortName())
	}
	return &Runner{
		role:   r,
		cfg:    cfg,
		conns:  conns,
		events: events,
		logger: logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Role returns the supervised Role.
func (rn *Runner) Role() Role { return rn.role }

// EventManager exposes the shared EventManager to the Role implementation.
func (rn *Runner) EventManager() *eventmanager.Manager { return rn.events }

// GetConnection returns the named (or default) connection shared with this
// role via the agent's ConnectionRegistry.
func (rn *Runner) GetConnection(name string) *connection.Connection {
	if rn.conns == nil {
		return nil
	}
	return rn.conns.Get(name)
}

// ShareConnection adds conn to the role's shared connection registry.
// "default" is immutable and always fails with ErrForbiddenConnectionName.
func (rn *Runner) ShareConnection(conn *connection.Connection) error {
	if conn != nil && conn.Name == connection.Default {
		return agenterrors.ErrForbiddenConnectionName
	}
	if rn.conns == nil {
		return agenterrors.ErrConnectionNotExist
	}
	return rn.conns.Add(conn)
}

// UnshareConnection removes name from the role's shared connection
// registry. "default" is immutable and always fails with
// ErrForbiddenConnectionName.
func (rn *Runner) UnshareConnection(name string) error {
	if name == connection.Default {
		return agenterrors.ErrForbiddenConnectionName
	}
	if rn.conns == nil {
		return agenterrors.ErrConnectionNotExist
	}
	return rn.conns.Remove(name)
}

// Done is closed once the run loop has exited.
func (rn *Runner) Done() <-chan struct{} {
	return rn.done
}

// Run starts the supervised loop in the current goroutine, calling
// role.Main() on each iteration and sleeping WaitInterval between calls
// until Stop is called, ctx is canceled, or MaxLoopCount iterations have
// run. When DisableRunLoop is set, Main is called exactly once.
func (rn *Runner) Run(ctx context.Context) {
	defer close(rn.done)

	rn.mu.Lock()
	rn.running = true
	rn.mu.Unlock()

	rn.logger.WithField("role", rn.role.ShortName()).Info("starting role")

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-rn.stopCh:
			return
		default:
		}

		if err := rn.role.Main(ctx); err != nil {
			rn.logger.WithContext(ctx).WithError(err).WithField("role", rn.role.ShortName()).Warn("role iteration failed")
		}

		if rn.cfg.DisableRunLoop {
			return
		}

		iterations++
		if rn.cfg.MaxLoopCount > 0 && iterations >= rn.cfg.MaxLoopCount {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-rn.stopCh:
			return
		case <-time.After(rn.cfg.WaitInterval):
		}
	}
}

// Stop signals the run loop to exit. When fromSelf is false it blocks
// until the loop has actually exited; a Role calling Stop on itself from
// inside Main must pass fromSelf=true to avoid deadlocking on its own
// completion.
func (rn *Runner) Stop(fromSelf bool) {
	rn.logger.WithField("role", rn.role.ShortName()).Info("stop requested")
	rn.stopOnce.Do(func() {
		close(rn.stopCh)
	})
	rn.mu.Lock()
	rn.running = false
	rn.mu.Unlock()
	if fromSelf {
		return
	}
	<-rn.done
}

// LoadInputs discovers every Input adapter implementation registered in
// the process-local plugin registry and indexes it by alias, for roles
// (the Poller) that configure inputs dynamically from console data.
func (rn *Runner) LoadInputs() map[string]input.Factory {
	out := make(map[string]input.Factory)
	for _, alias := range inputregistry.Aliases() {
		out[alias] = inputregistry.Get(alias)
	}
	return out
}

// Running reports whether the run loop is currently active.
func (rn *Runner) Running() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.running
}
