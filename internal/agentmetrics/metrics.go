// Package agentmetrics exposes the agent's Prometheus collectors, grounded
// on infrastructure/metrics/metrics.go's NewWithRegistry pattern: a single
// struct of pre-registered collectors, constructed once and handed to
// every component that needs to record something.
package agentmetrics

import (
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the agent exposes.
type Metrics struct {
	agentName string

	EventsQueued      prometheus.Gauge
	EventsShipped     *prometheus.CounterVec
	SpoolerBatches    *prometheus.CounterVec
	BackpressureStall prometheus.Counter

	HeartbeatsTotal *prometheus.CounterVec
	PairAttempts    *prometheus.CounterVec

	RolesRunning *prometheus.GaugeVec

	PollerInputRuns  *prometheus.CounterVec
	DetectorRuleRuns *prometheus.CounterVec
}

// AgentLabel returns the agent name this Metrics instance was constructed
// for, used as the "agent" label value by callers outside this package.
func (m *Metrics) AgentLabel() string {
	return m.agentName
}

// New creates a Metrics instance registered against the default registerer.
func New(agentName string) *Metrics {
	return NewWithRegistry(agentName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
// registerer may be nil to skip registration entirely (useful in tests
// that construct multiple instances in the same process).
func NewWithRegistry(agentName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		agentName: agentName,
		EventsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reflex_agent_events_queued",
			Help: "Current number of events waiting in the spooler queue",
		}),
		EventsShipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_events_shipped_total",
				Help: "Total number of events successfully shipped to the console",
			},
			[]string{"agent"},
		),
		SpoolerBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_spooler_batches_total",
				Help: "Total number of bulk-event batches sent, by outcome",
			},
			[]string{"agent", "outcome"},
		),
		BackpressureStall: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reflex_agent_backpressure_stalls_total",
			Help: "Total number of times event producers stalled on a full queue",
		}),
		HeartbeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_heartbeats_total",
				Help: "Total number of heartbeat attempts, by outcome",
			},
			[]string{"agent", "outcome"},
		),
		PairAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_pair_attempts_total",
				Help: "Total number of console pairing attempts, by outcome",
			},
			[]string{"agent", "outcome"},
		),
		RolesRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reflex_agent_roles_running",
				Help: "Whether a given role is currently running (1) or stopped (0)",
			},
			[]string{"agent", "role"},
		),
		PollerInputRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_poller_input_runs_total",
				Help: "Total number of input adapter fetch cycles, by outcome",
			},
			[]string{"agent", "input", "outcome"},
		),
		DetectorRuleRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_agent_detector_rule_runs_total",
				Help: "Total number of detection rule evaluations, by outcome",
			},
			[]string{"agent", "rule", "outcome"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EventsQueued,
			m.EventsShipped,
			m.SpoolerBatches,
			m.BackpressureStall,
			m.HeartbeatsTotal,
			m.PairAttempts,
			m.RolesRunning,
			m.PollerInputRuns,
			m.DetectorRuleRuns,
		)
	}

	return m
}

// RecordSpoolerBatch records the outcome ("sent", "rejected", "error") of
// one drain-and-send cycle, plus the events it carried when sent.
func (m *Metrics) RecordSpoolerBatch(agent, outcome string, eventCount int) {
	m.SpoolerBatches.WithLabelValues(agent, outcome).Inc()
	if outcome == "sent" {
		m.EventsShipped.WithLabelValues(agent).Add(float64(eventCount))
	}
}

// RecordBackpressureStall increments the stall counter.
func (m *Metrics) RecordBackpressureStall() {
	m.BackpressureStall.Inc()
}

// RecordHeartbeat records a heartbeat attempt's outcome.
func (m *Metrics) RecordHeartbeat(agent, outcome string) {
	m.HeartbeatsTotal.WithLabelValues(agent, outcome).Inc()
}

// RecordPairAttempt records a pairing attempt's outcome.
func (m *Metrics) RecordPairAttempt(agent, outcome string) {
	m.PairAttempts.WithLabelValues(agent, outcome).Inc()
}

// SetRoleRunning records whether a role is currently running.
func (m *Metrics) SetRoleRunning(agent, role string, running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	m.RolesRunning.WithLabelValues(agent, role).Set(value)
}

// Enabled reports whether the agent should expose its metrics endpoint.
// Defaults to enabled; set METRICS_ENABLED=false to opt out.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes and returns the process-wide Metrics instance.
func Init(agentName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(agentName)
	}
	return global
}

// Global returns the process-wide Metrics instance, initializing it with
// an "unknown" agent name if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("unknown")
	}
	return global
}
