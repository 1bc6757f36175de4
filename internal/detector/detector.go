package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
	"github.com/reflexsoar/reflex-agent-go/internal/event"
	"github.com/reflexsoar/reflex-agent-go/internal/eventmanager"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/management"
)

// ShortName is the role's registered identifier.
const ShortName = "detector"

// DefaultCatchupPeriod bounds how far behind a missed schedule a rule is
// allowed to look back, in minutes (the original's default is 24 hours).
const DefaultCatchupPeriod = 1440

// Evaluator executes a Rule against its query backend, returning the raw
// records it matched. Concrete backends (Elasticsearch Lucene/EQL, etc.)
// are out of scope; Evaluator is the seam a future adapter plugs into,
// selected by Rule.Query.Backend.
type Evaluator interface {
	Evaluate(ctx context.Context, rule *Rule) ([]map[string]interface{}, error)
}

// Detector fetches the agent's assigned detection rules on each tick and
// runs the ones whose schedule has come due.
type Detector struct {
	client     *management.Client
	events     *eventmanager.Manager
	evaluators map[string]Evaluator
	metrics    *agentmetrics.Metrics
	logger     *logging.Logger

	rules map[string]*Rule
}

// New constructs a Detector. evaluators maps a rule's query backend name
// (e.g. "elasticsearch") to the Evaluator that runs it; a rule whose
// backend has no registered Evaluator is skipped with a warning. metrics
// may be nil, in which case per-rule run outcomes are not recorded.
func New(client *management.Client, events *eventmanager.Manager, evaluators map[string]Evaluator, metrics *agentmetrics.Metrics, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.NewFromEnv(ShortName)
	}
	if evaluators == nil {
		evaluators = map[string]Evaluator{}
	}
	return &Detector{
		client:     client,
		events:     events,
		evaluators: evaluators,
		metrics:    metrics,
		logger:     logger,
		rules:      map[string]*Rule{},
	}
}

// ShortName identifies this role.
func (d *Detector) ShortName() string { return ShortName }

// Main fetches the assigned rules, merges them into the Detector's known
// set, and runs every rule whose ShouldRun reports it is due.
func (d *Detector) Main(ctx context.Context) error {
	if d.client == nil {
		return fmt.Errorf("detector: no management client configured")
	}

	raw, err := d.client.GetDetections(ctx)
	if err != nil {
		return fmt.Errorf("detector: fetch detections: %w", err)
	}
	if len(raw) == 0 {
		d.logger.Info("detector: no detections assigned to this agent")
		return nil
	}
	d.logger.WithField("count", len(raw)).Info("detector: loaded detections")

	now := time.Now().UTC()
	for _, item := range raw {
		def, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rule := d.mergeRule(def)
		if !rule.Active {
			continue
		}

		due, err := rule.ShouldRun(effectiveCatchup(rule.CatchupPeriod), now)
		if err != nil {
			d.logger.WithError(err).WithField("rule", rule.UUID).Warn("detector: rule missing last_run, skipping")
			continue
		}
		if !due {
			continue
		}

		d.runRule(ctx, rule, now)
	}

	return nil
}

func effectiveCatchup(configured int) int {
	if configured <= 0 {
		return DefaultCatchupPeriod
	}
	return configured
}

func (d *Detector) runRule(ctx context.Context, rule *Rule, now time.Time) {
	evaluator := d.evaluators[rule.Query.Backend]
	if evaluator == nil {
		d.logger.WithField("backend", rule.Query.Backend).Warn("detector: no evaluator registered for backend, skipping")
		return
	}

	records, err := evaluator.Evaluate(ctx, rule)
	if err != nil {
		d.logger.WithError(err).WithField("rule", rule.UUID).Warn("detector: rule evaluation failed")
		d.recordRuleRun(rule.UUID, "error")
		return
	}

	rule.LastRun = now
	if len(records) == 0 {
		d.recordRuleRun(rule.UUID, "no_hits")
		return
	}
	rule.LastHit = now
	d.recordRuleRun(rule.UUID, "hit")

	base := event.BaseFields{
		Source:    rule.Name,
		RiskScore: rule.RiskScore,
		StaticTags: rule.Tags,
	}
	mapping := make([]event.ObservableMapping, 0, len(rule.ObservableFields))
	for _, f := range rule.ObservableFields {
		mapping = append(mapping, event.ObservableMapping{
			Field:    f.Field,
			Alias:    f.Alias,
			DataType: f.DataType,
			TLP:      f.TLP,
			Tags:     f.Tags,
		})
	}

	raws := make([]eventmanager.RawEvent, 0, len(records))
	for _, rec := range records {
		raws = append(raws, eventmanager.RawEvent{Record: rec})
	}
	if err := d.events.PrepareEvents(ctx, raws, base, rule.SignatureFields, mapping, ""); err != nil {
		d.logger.WithError(err).WithField("rule", rule.UUID).Warn("detector: failed to prepare events from rule hits")
	}
}

// recordRuleRun reports a rule evaluation outcome to agentmetrics, if wired.
func (d *Detector) recordRuleRun(ruleUUID, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.DetectorRuleRuns.WithLabelValues(d.metrics.AgentLabel(), ruleUUID, outcome).Inc()
}

// mergeRule upserts def into the Detector's known rule set, preserving the
// existing LastRun/LastHit/Lookbehind state across ticks (only the
// console-held fields are refreshed).
func (d *Detector) mergeRule(def map[string]interface{}) *Rule {
	uuid, _ := def["uuid"].(string)

	existing, ok := d.rules[uuid]
	if !ok {
		existing = &Rule{
			UUID:    uuid,
			LastRun: parseTimeField(def, "last_run", time.Now().UTC()),
			LastHit: parseTimeField(def, "last_hit", time.Time{}),
		}
		d.rules[uuid] = existing
	}

	existing.Name, _ = def["name"].(string)
	existing.Description, _ = def["description"].(string)
	existing.Active, _ = def["active"].(bool)
	existing.Interval = intField(def, "interval")
	existing.MutePeriod = intField(def, "mute_period")
	existing.CatchupPeriod = intField(def, "catchup_period")
	existing.RiskScore = intField(def, "risk_score")
	existing.Severity = intField(def, "severity")
	if lb := intField(def, "lookbehind"); lb > 0 {
		existing.Lookbehind = lb
	}
	existing.RuleType = ParseRuleType(stringField(def, "rule_type"))
	existing.SignatureFields = stringSliceField(def, "signature_fields")
	existing.Tags = stringSliceField(def, "tags")

	if q, ok := def["query"].(map[string]interface{}); ok {
		existing.Query = QueryConfig{
			Query:    stringField(q, "query"),
			Language: stringField(q, "language"),
			Backend:  stringField(q, "backend"),
		}
	}
	if s, ok := def["source"].(map[string]interface{}); ok {
		existing.Source = Source{
			Language: stringField(s, "language"),
			Name:     stringField(s, "name"),
			UUID:     stringField(s, "uuid"),
		}
	}
	if raw, ok := def["observable_fields"].([]interface{}); ok {
		existing.ObservableFields = observableFieldsFrom(raw)
	}

	return existing
}

func observableFieldsFrom(raw []interface{}) []ObservableField {
	out := make([]ObservableField, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, ObservableField{
			Field:    stringField(m, "field"),
			Alias:    stringField(m, "alias"),
			DataType: stringField(m, "data_type"),
			TLP:      intField(m, "tlp"),
			Tags:     stringSliceField(m, "tags"),
		})
	}
	return out
}

// parseTimeField parses an ISO-8601 UTC timestamp field, returning
// fallback when absent or unparseable.
func parseTimeField(m map[string]interface{}, key string, fallback time.Time) time.Time {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringSliceField(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
