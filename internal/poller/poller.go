// Package poller implements the Poller role: it asks the paired console
// which inputs this agent should run, configures the corresponding Input
// adapters, and periodically runs the one that has gone longest without a
// fetch, per spec.md §4.I and grounded on
// original_source/role/core/poller.py (Poller.main, configure_input,
// fetch_inputs).
package poller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
	"github.com/reflexsoar/reflex-agent-go/internal/eventmanager"
	"github.com/reflexsoar/reflex-agent-go/internal/input"
	"github.com/reflexsoar/reflex-agent-go/internal/inputregistry"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/management"
)

// ShortName is the role's registered identifier.
const ShortName = "poller"

// Poller fetches its assigned inputs from the console, configures the
// matching adapters, and runs them in least-recently-run order.
type Poller struct {
	client  *management.Client
	events  *eventmanager.Manager
	metrics *agentmetrics.Metrics
	logger  *logging.Logger

	mu         sync.Mutex
	configured map[string]input.Input
}

// New constructs a Poller bound to client and events. metrics may be nil,
// in which case per-input run outcomes are not recorded.
func New(client *management.Client, events *eventmanager.Manager, metrics *agentmetrics.Metrics, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.NewFromEnv(ShortName)
	}
	return &Poller{
		client:     client,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		configured: map[string]input.Input{},
	}
}

// ShortName identifies this role.
func (p *Poller) ShortName() string { return ShortName }

// configureInput instantiates and stores the adapter for an input
// definition the console returned, unless it is already configured.
func (p *Poller) configureInput(uuid string, raw map[string]interface{}, username, secret string) {
	alias, _ := raw["plugin"].(string)
	alias = strings.ToLower(alias)

	factory := inputregistry.Get(alias)
	if factory == nil {
		p.logger.WithField("plugin", alias).Warn("poller: no input adapter registered for plugin, skipping")
		return
	}

	configFields := configFieldsFor(raw)
	cfg := input.ParseConfig(raw, configFields)
	p.configured[uuid] = factory(cfg, username, secret)
}

func configFieldsFor(raw map[string]interface{}) []string {
	actual, _ := raw["config"].(map[string]interface{})
	fields := make([]string, 0, len(actual))
	for k := range actual {
		fields = append(fields, k)
	}
	return fields
}

// fetchInputs returns every configured input that has never run; when all
// have run, it returns only the one with the oldest LastRun, matching
// Poller.fetch_inputs.
func (p *Poller) fetchInputs() []input.Input {
	var unrun, ran []input.Input
	for _, in := range p.configured {
		if in.LastRun().IsZero() {
			unrun = append(unrun, in)
		} else {
			ran = append(ran, in)
		}
	}
	if len(unrun) > 0 {
		return unrun
	}
	sort.Slice(ran, func(i, j int) bool { return ran[i].LastRun().Before(ran[j].LastRun()) })
	if len(ran) == 0 {
		return nil
	}
	return ran[:1]
}

// recordInputRun reports an input fetch outcome to agentmetrics, if wired.
func (p *Poller) recordInputRun(alias, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.PollerInputRuns.WithLabelValues(p.metrics.AgentLabel(), alias, outcome).Inc()
}

// Main performs one poll cycle: reconcile configured inputs against the
// console's current assignment, then run the input most overdue for a
// fetch.
func (p *Poller) Main(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("poller: no management client configured")
	}

	inputs, err := p.client.GetInputs(ctx)
	if err != nil {
		return fmt.Errorf("poller: fetch inputs: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(inputs) == 0 {
		p.logger.Info("poller: no inputs configured for this agent")
		p.configured = map[string]input.Input{}
		return nil
	}

	seen := make(map[string]bool, len(inputs))
	for _, raw := range inputs {
		def, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		uuid, _ := def["uuid"].(string)
		if uuid == "" {
			continue
		}
		seen[uuid] = true
		if _, exists := p.configured[uuid]; exists {
			continue
		}

		credID, _ := def["credential"].(string)
		username, secret, credErr := p.client.GetInputCredentials(ctx, credID)
		if credErr != nil {
			p.logger.WithError(credErr).WithField("input", uuid).Warn("poller: failed to resolve input credential")
			continue
		}
		p.configureInput(uuid, def, username, secret)
	}

	for uuid := range p.configured {
		if !seen[uuid] {
			delete(p.configured, uuid)
		}
	}

	for _, in := range p.fetchInputs() {
		records, runErr := in.Run(ctx)
		if runErr != nil {
			p.logger.WithError(runErr).WithField("input", in.Alias()).Warn("poller: input run failed")
			p.recordInputRun(in.Alias(), "error")
			continue
		}

		cfg := in.Config()
		raws := make([]eventmanager.RawEvent, 0, len(records))
		for _, rec := range records {
			raws = append(raws, eventmanager.RawEvent{Record: rec})
		}
		if err := p.events.PrepareEvents(ctx, raws, cfg.BaseFields, cfg.SignatureFields, cfg.ObservableMapping, cfg.SourceField); err != nil {
			p.logger.WithError(err).Warn("poller: failed to prepare events from input")
			p.recordInputRun(in.Alias(), "prepare_failed")
		} else {
			p.recordInputRun(in.Alias(), "ok")
		}
		in.SetLastRun(time.Now().UTC())
	}

	return nil
}
