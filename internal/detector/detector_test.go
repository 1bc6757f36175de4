package detector

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
)

type stubEvaluator struct {
	records []map[string]interface{}
	calls   int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, rule *Rule) ([]map[string]interface{}, error) {
	s.calls++
	return s.records, nil
}

func pastISO(d time.Duration) string {
	return time.Now().UTC().Add(-d).Format(time.RFC3339)
}

func TestMergeRuleKeepsInactiveFlag(t *testing.T) {
	d := New(nil, nil, nil, nil, nil)
	def := map[string]interface{}{
		"uuid": "r1", "active": false, "interval": float64(5),
		"last_run": pastISO(time.Hour), "query": map[string]interface{}{"backend": "es"},
	}
	rule := d.mergeRule(def)
	assert.False(t, rule.Active)
}

func TestMergeRuleParsesFields(t *testing.T) {
	d := New(nil, nil, nil, nil, nil)
	def := map[string]interface{}{
		"uuid": "r1", "name": "Test Rule", "active": true, "interval": float64(30),
		"lookbehind": float64(30), "catchup_period": float64(1440),
		"last_run": pastISO(time.Hour),
		"query":    map[string]interface{}{"backend": "elasticsearch", "query": "x"},
		"signature_fields": []interface{}{"event.code"},
		"observable_fields": []interface{}{
			map[string]interface{}{"field": "host.name", "data_type": "host"},
		},
	}
	rule := d.mergeRule(def)
	assert.Equal(t, "Test Rule", rule.Name)
	assert.True(t, rule.Active)
	assert.Equal(t, 30, rule.Interval)
	assert.Equal(t, "elasticsearch", rule.Query.Backend)
	require.Len(t, rule.ObservableFields, 1)
	assert.Equal(t, "host.name", rule.ObservableFields[0].Field)
}

func TestRunRuleWithNoEvaluatorSkipsRule(t *testing.T) {
	d := New(nil, nil, map[string]Evaluator{}, nil, nil)
	rule := &Rule{UUID: "r1", Query: QueryConfig{Backend: "unknown"}}
	d.runRule(context.Background(), rule, time.Now().UTC())
	assert.True(t, rule.LastRun.IsZero())
}

func TestRecordRuleRunIncrementsMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := agentmetrics.NewWithRegistry("agent-1", reg)
	d := New(nil, nil, nil, m, nil)

	d.recordRuleRun("r1", "hit")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DetectorRuleRuns.WithLabelValues("agent-1", "r1", "hit")))
}

func TestRecordRuleRunNilMetricsIsSafe(t *testing.T) {
	d := New(nil, nil, nil, nil, nil)
	d.recordRuleRun("r1", "hit")
}
