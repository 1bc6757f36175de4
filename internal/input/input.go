// Package input defines the Input adapter contract and its configuration
// parsing, per spec.md §4.I and grounded on
// original_source/input/base/base.py (BaseInput.parse_config).
package input

import (
	"context"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/event"
)

// Kind enumerates the input adapter families the original plugin system
// recognizes. Only Poll is exercised by the agent supervisor today; the
// others are reinstated as named constants so a future adapter can declare
// its kind without inventing the taxonomy.
type Kind string

const (
	KindPoll     Kind = "poll"
	KindStream   Kind = "stream"
	KindListener Kind = "listener"
	KindIntel    Kind = "intel"
)

// Config is the parsed, input-adapter-relevant slice of a console input
// definition. It mirrors BaseInput.parse_config's field selection exactly:
// the console sends one document nesting adapter config, field mapping,
// and Event base-field overrides together, and parse_config pulls each
// concern out into its own bucket.
type Config struct {
	Organization    string
	ObservableMapping []event.ObservableMapping
	SignatureFields []string
	SourceField     string
	BaseFields      event.BaseFields
	// Settings holds the keys of the nested "config" object that are named
	// in ParseConfig's configFields argument. The Poller passes every key of
	// that object, so for Poller-configured inputs Settings is the whole
	// nested config.
	Settings map[string]interface{}
}

// ParseConfig extracts a Config from a raw console input document, keeping
// only the keys in configFields from the nested "config" object.
func ParseConfig(raw map[string]interface{}, configFields []string) Config {
	cfg := Config{SourceField: "_source"}

	if org, ok := raw["organization"].(string); ok {
		cfg.Organization = org
	}

	if fm, ok := raw["field_mapping"].(map[string]interface{}); ok {
		if fields, ok := fm["fields"].([]interface{}); ok {
			cfg.ObservableMapping = parseMapping(fields)
		}
	}

	actual, _ := raw["config"].(map[string]interface{})
	if actual == nil {
		actual = map[string]interface{}{}
	}

	if v, ok := actual["signature_fields"].([]interface{}); ok {
		cfg.SignatureFields = toStringSlice(v)
	}
	if v, ok := actual["source_field"].(string); ok && v != "" {
		cfg.SourceField = v
	}

	cfg.BaseFields = baseFieldsFrom(actual)

	allow := make(map[string]bool, len(configFields))
	for _, f := range configFields {
		allow[f] = true
	}
	settings := make(map[string]interface{})
	for k, v := range actual {
		if allow[k] {
			settings[k] = v
		}
	}
	cfg.Settings = settings

	return cfg
}

func baseFieldsFrom(actual map[string]interface{}) event.BaseFields {
	bf := event.BaseFields{}
	if v, ok := actual["rule_name"].(string); ok {
		bf.RuleNameField = v
	}
	if v, ok := actual["description_field"].(string); ok {
		bf.DescriptionField = v
	}
	if v, ok := actual["severity_field"].(string); ok {
		bf.SeverityField = v
	}
	if v, ok := actual["source_reference"].(string); ok {
		bf.SourceReferenceField = v
	}
	if v, ok := actual["original_date_field"].(string); ok {
		bf.OriginalDateField = v
	}
	if v, ok := actual["tag_fields"].([]interface{}); ok {
		bf.TagFields = toStringSlice(v)
	}
	if v, ok := actual["static_tags"].([]interface{}); ok {
		bf.StaticTags = toStringSlice(v)
	}
	return bf
}

func parseMapping(raw []interface{}) []event.ObservableMapping {
	out := make([]event.ObservableMapping, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		om := event.ObservableMapping{}
		if v, ok := m["field"].(string); ok {
			om.Field = v
		}
		if v, ok := m["alias"].(string); ok {
			om.Alias = v
		}
		if v, ok := m["data_type"].(string); ok {
			om.DataType = v
		}
		if v, ok := m["tlp"].(float64); ok {
			om.TLP = int(v)
		}
		if v, ok := m["tags"].([]interface{}); ok {
			om.Tags = toStringSlice(v)
		}
		out = append(out, om)
	}
	return out
}

func toStringSlice(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Record is one document fetched by Run, ready for event.NewFromRecord.
type Record = map[string]interface{}

// Input is the contract every adapter (Elasticsearch poller, webhook
// listener, etc.) implements. Run performs one fetch cycle and returns the
// records retrieved; LastRun is read by the Poller role to pick the
// longest-idle input first (fetch_inputs in the original).
type Input interface {
	Alias() string
	Run(ctx context.Context) ([]Record, error)
	LastRun() time.Time
	SetLastRun(t time.Time)
	Config() Config
}

// Factory builds a configured Input instance for a console input document,
// given its parsed Config and resolved credential.
type Factory func(cfg Config, username, secret string) Input
