// Package agent implements the Supervisor: the top-level process that
// pairs with a console, runs the heartbeat/policy-reconcile loop, and
// starts/stops role workers accordingly, per spec.md §4.K. Grounded on
// original_source/agent.py (Agent._load_classes, load_inputs, load_roles),
// translated per the REDESIGN FLAGS guidance into a process-local plugin
// registry populated by func init() in each role package.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
	"github.com/reflexsoar/reflex-agent-go/internal/config"
	"github.com/reflexsoar/reflex-agent-go/internal/connection"
	"github.com/reflexsoar/reflex-agent-go/internal/envconfig"
	"github.com/reflexsoar/reflex-agent-go/internal/eventcache"
	"github.com/reflexsoar/reflex-agent-go/internal/eventmanager"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/management"
	"github.com/reflexsoar/reflex-agent-go/internal/queue"
	"github.com/reflexsoar/reflex-agent-go/internal/role"
	"github.com/reflexsoar/reflex-agent-go/internal/roleregistry"
	"golang.org/x/sync/errgroup"
)

// Version is substituted into the management client's User-Agent header.
var Version = "0.1.0"

// Supervisor owns the agent's configuration, its console connection, the
// event pipeline, and every started role. It is the only component
// allowed to mutate the connection registry or the per-role config
// snapshots roles read.
type Supervisor struct {
	cfg     *config.AgentConfig
	conns   *connection.Registry
	events  *eventmanager.Manager
	client  *management.Client
	metrics *agentmetrics.Metrics
	logger  *logging.Logger

	mu      sync.Mutex
	runners map[string]*role.Runner
	group   *errgroup.Group
}

// New constructs a Supervisor around cfg. The management client and event
// pipeline are wired lazily by Pair/Boot since they depend on the paired
// console's URL and API key.
func New(cfg *config.AgentConfig, metrics *agentmetrics.Metrics, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewFromEnv("agent")
	}
	if metrics == nil {
		metrics = agentmetrics.New(cfg.Name)
	}
	return &Supervisor{
		cfg:     cfg,
		conns:   connection.NewRegistry(),
		metrics: metrics,
		logger:  logger,
		runners: map[string]*role.Runner{},
	}
}

// Pair exchanges credentials with consoleURL, persisting the returned
// agent uuid and console_info, and registers the resulting connection
// globally as "default". Call Save on the returned config yourself once
// this returns nil.
func (s *Supervisor) Pair(ctx context.Context, consoleURL, apiKey string, groups []string) error {
	client, err := management.New(management.Config{
		BaseURL: consoleURL,
		APIKey:  apiKey,
		Version: Version,
		Logger:  s.logger,
	})
	if err != nil {
		return fmt.Errorf("agent: pair: %w", err)
	}

	payload := map[string]interface{}{"name": s.cfg.Name, "groups": groups}
	body, err := client.Pair(ctx, payload)
	if err != nil {
		s.metrics.RecordPairAttempt(s.cfg.Name, "failed")
		return err
	}
	if body == nil {
		s.metrics.RecordPairAttempt(s.cfg.Name, "unreachable")
		return fmt.Errorf("agent: pair: console unreachable")
	}

	uuid, _ := body["uuid"].(string)
	token, _ := body["token"].(string)
	if token == "" {
		token = apiKey
	}
	s.cfg.UUID = uuid
	if err := s.cfg.AddPairedConsole(consoleURL, token); err != nil {
		return fmt.Errorf("agent: pair: %w", err)
	}

	if _, err := s.conns.BuildManagement(consoleURL, token, false, connection.Default, "reflexsoar-agent/"+Version, true); err != nil {
		return fmt.Errorf("agent: pair: %w", err)
	}

	s.client = client
	s.metrics.RecordPairAttempt(s.cfg.Name, "ok")
	return nil
}

// Boot resolves the default connection from an already-paired config
// (console_info) and warns about any configured role with no registered
// implementation. It is the counterpart to Pair for a process that starts
// already paired from a previous run.
func (s *Supervisor) Boot(ctx context.Context) []string {
	var warnings []string

	if s.client == nil && s.cfg.ConsoleInfo.URL != "" {
		client, err := management.New(management.Config{
			BaseURL: s.cfg.ConsoleInfo.URL,
			APIKey:  s.cfg.ConsoleInfo.APIKey,
			Version: Version,
			Logger:  s.logger,
		})
		if err == nil {
			s.client = client
			_, _ = s.conns.BuildManagement(s.cfg.ConsoleInfo.URL, s.cfg.ConsoleInfo.APIKey, s.cfg.ConsoleInfo.IgnoreTLS, connection.Default, "reflexsoar-agent/"+Version, true)
		} else {
			warnings = append(warnings, fmt.Sprintf("could not rebuild console connection: %v", err))
		}
	}

	for _, r := range s.cfg.Roles {
		if roleregistry.Get(r) == nil {
			warnings = append(warnings, fmt.Sprintf("role %q is configured but not installed", r))
		}
	}
	return warnings
}

// Heartbeat sends a heartbeat to the console. skipRun suppresses the
// server's policy reconciliation hint for the initial startup heartbeat.
func (s *Supervisor) Heartbeat(ctx context.Context, skipRun bool) (map[string]interface{}, error) {
	if s.client == nil {
		return nil, fmt.Errorf("agent: heartbeat: not paired")
	}
	body, err := s.client.Heartbeat(ctx, s.cfg.UUID, map[string]interface{}{"skip_run": skipRun})
	if err != nil {
		s.metrics.RecordHeartbeat(s.cfg.Name, "failed")
		return nil, err
	}
	s.metrics.RecordHeartbeat(s.cfg.Name, "ok")
	return body, nil
}

// startEventPipeline wires the EventManager+Spooler bound to the default
// (console) connection and initializes the optional Redis dedup cache.
func (s *Supervisor) startEventPipeline(ctx context.Context) error {
	var cache *eventcache.Cache
	if s.cfg.EventCacheKey != "" && !s.cfg.DisableEventCacheCheck {
		cache = eventcache.New(eventcache.Config{Addr: envconfig.GetEnv("REFLEX_AGENT_REDIS_ADDR", "localhost:6379")})
	}

	s.events = eventmanager.New(
		s.client,
		queue.DefaultMaxSpooled,
		cache,
		eventmanager.CacheSettings{
			Enabled: !s.cfg.DisableEventCacheCheck,
			Key:     s.cfg.EventCacheKey,
			TTL:     time.Duration(s.cfg.EventCacheTTL) * time.Second,
		},
		s.logger,
	)
	return s.events.Initialize(ctx)
}

// StartRole starts name if it is installed and not already running.
func (s *Supervisor) StartRole(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.runners[name]; running {
		return nil
	}

	factory := roleregistry.Get(name)
	if factory == nil {
		return fmt.Errorf("agent: role %q is not installed", name)
	}

	cfg := s.cfg.RoleConfigs[name]
	r := factory(cfg, roleregistry.Deps{
		Client:      s.client,
		Events:      s.events,
		Connections: s.conns,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})

	runner := role.NewRunner(r, role.RunnerConfig{WaitInterval: waitIntervalFor(cfg)}, s.conns, s.events, s.logger)
	s.runners[name] = runner
	s.metrics.SetRoleRunning(s.cfg.Name, name, true)

	if s.group != nil {
		s.group.Go(func() error {
			runner.Run(ctx)
			return nil
		})
	} else {
		go runner.Run(ctx)
	}
	return nil
}

// applyRoleConfig pushes the current RoleConfigs[name] into the live runner
// for name, if it is running and its Role implements Configurable. Roles
// that don't implement it only ever see the config snapshot StartRole
// captured at role-start time.
func (s *Supervisor) applyRoleConfig(name string) {
	s.mu.Lock()
	runner, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	configurable, ok := runner.Role().(role.Configurable)
	if !ok {
		return
	}
	configurable.SetConfig(s.cfg.RoleConfigs[name])
}

func waitIntervalFor(cfg map[string]interface{}) time.Duration {
	if cfg == nil {
		return 0
	}
	switch v := cfg["wait_interval"].(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

// StopRole stops name if it is running.
func (s *Supervisor) StopRole(name string) {
	s.mu.Lock()
	runner, ok := s.runners[name]
	if ok {
		delete(s.runners, name)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	runner.Stop(false)
	s.metrics.SetRoleRunning(s.cfg.Name, name, false)
}

// StopAllRoles stops every currently-running role.
func (s *Supervisor) StopAllRoles() {
	s.mu.Lock()
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.StopRole(name)
	}
}

// RunningRoles returns the names of currently-running roles.
func (s *Supervisor) RunningRoles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	return names
}

// ReconcilePolicy fetches the console's policy and, if it has changed,
// applies it to cfg and starts/stops roles to match. Returns whether a
// change was applied.
func (s *Supervisor) ReconcilePolicy(ctx context.Context) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("agent: reconcile: not paired")
	}

	policy, err := s.client.GetPolicy(ctx, s.cfg.UUID)
	if err != nil {
		return false, err
	}
	if policy == nil || !s.cfg.PolicyChanged(policy) {
		return false, nil
	}

	previousRoles := append([]string{}, s.cfg.Roles...)
	s.cfg.FromPolicy(policy)

	wanted := make(map[string]bool, len(s.cfg.Roles))
	for _, r := range s.cfg.Roles {
		wanted[r] = true
	}
	wasRunning := make(map[string]bool, len(previousRoles))
	for _, r := range previousRoles {
		wasRunning[r] = true
		if !wanted[r] {
			s.StopRole(r)
		}
	}
	for _, r := range s.cfg.Roles {
		if wasRunning[r] {
			s.applyRoleConfig(r)
			continue
		}
		if err := s.StartRole(ctx, r); err != nil {
			s.logger.WithError(err).WithField("role", r).Warn("agent: failed to start role from policy")
		}
	}

	return true, s.cfg.Save()
}

// Run executes the full boot + heartbeat/reconcile loop until ctx is
// canceled. It returns a non-nil error if the initial heartbeat fails.
func (s *Supervisor) Run(ctx context.Context) error {
	if _, err := s.Heartbeat(ctx, true); err != nil {
		return fmt.Errorf("agent: initial heartbeat failed: %w", err)
	}

	if err := s.startEventPipeline(ctx); err != nil {
		return fmt.Errorf("agent: failed to start event pipeline: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	s.group = group
	ctx = groupCtx

	for _, r := range s.cfg.Roles {
		if err := s.StartRole(ctx, r); err != nil {
			s.logger.WithError(err).WithField("role", r).Warn("agent: failed to start configured role")
		}
	}

	interval := time.Duration(s.cfg.HealthCheckInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			s.StopAllRoles()
			return nil
		case <-time.After(interval):
		}

		if _, err := s.Heartbeat(ctx, false); err != nil {
			s.logger.WithError(err).Warn("agent: heartbeat failed, stopping roles")
			s.StopAllRoles()
			return fmt.Errorf("agent: heartbeat failed during run: %w", err)
		}

		if _, err := s.ReconcilePolicy(ctx); err != nil {
			s.logger.WithError(err).Warn("agent: policy reconcile failed")
		}
	}
}
