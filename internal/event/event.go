// Package event implements the agent's normalized Event/Observable model:
// construction from raw records, dot-path field extraction, severity
// mapping and signature hashing, per spec.md §4.D.
package event

import (
	"crypto/md5" //nolint:gosec // non-security dedup signature, determinism is what matters
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

// defaultSeverityMap is used when a BaseFields does not supply its own.
var defaultSeverityMap = map[string]int{
	"low": 1, "medium": 2, "high": 3, "critical": 4,
	"1": 1, "2": 2, "3": 3, "4": 4,
}

// Observable is a typed artifact extracted from an Event.
type Observable struct {
	Value               string   `json:"value"`
	DataType            string   `json:"data_type"`
	TLP                 int      `json:"tlp"`
	Tags                []string `json:"tags,omitempty"`
	IOC                 bool     `json:"ioc"`
	Spotted             bool     `json:"spotted"`
	Safe                bool     `json:"safe"`
	SourceField         string   `json:"source_field"`
	OriginalSourceField string   `json:"original_source_field"`
}

// ObservableMapping describes how to extract one Observable from a raw
// record: dot-path field, optional alias, and static metadata.
type ObservableMapping struct {
	Field    string
	Alias    string
	DataType string
	TLP      int
	Tags     []string
	IOC      bool
	Spotted  bool
	Safe     bool
}

// BaseFields names the raw-record fields used to populate an Event's
// top-level attributes, per spec.md §4.D step 2-5.
type BaseFields struct {
	RuleNameField        string
	DescriptionField     string
	SourceReferenceField string
	OriginalDateField    string
	TLP                  int
	Type                 string
	Source               string
	RiskScore            int
	SeverityField        string
	SeverityMap          map[string]int
	StaticTags           []string
	TagFields            []string
}

// Event is the agent's normalized security record.
type Event struct {
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Reference    string       `json:"reference,omitempty"`
	RawLog       string       `json:"raw_log,omitempty"`
	Signature    string       `json:"signature"`
	Source       string       `json:"source"`
	Severity     int          `json:"severity"`
	TLP          int          `json:"tlp"`
	Tags         []string     `json:"tags,omitempty"`
	Observables  []Observable `json:"observables,omitempty"`
	DetectionID  string       `json:"detection_id,omitempty"`
	RiskScore    int          `json:"risk_score,omitempty"`
	OriginalDate string       `json:"original_date,omitempty"`

	baseFields        BaseFields
	signatureFields   []string
	observableMapping []ObservableMapping
	message           interface{}
	customSeverityMap map[string]int
}

// NewFromObservables builds an Event from already-formed fields plus a
// list of Observables or observable-shaped maps (construction path A).
// source is required; severity, if given as an int out of the 1-4 range,
// maps to 1.
func NewFromObservables(title, description, reference, source string, severity, tlp int, tags []string, observables []interface{}) (*Event, error) {
	if source == "" {
		return nil, fmt.Errorf("event: source is required")
	}

	obs := make([]Observable, 0, len(observables))
	for _, raw := range observables {
		switch v := raw.(type) {
		case Observable:
			obs = append(obs, v)
		case map[string]interface{}:
			obs = append(obs, observableFromMap(v))
		default:
			return nil, fmt.Errorf("event: observable must be Observable or map, got %T", raw)
		}
	}

	if severity < 1 || severity > 4 {
		severity = 1
	}

	e := &Event{
		Title:       title,
		Description: description,
		Reference:   reference,
		Source:      source,
		Severity:    severity,
		TLP:         tlp,
		Tags:        append([]string{}, tags...),
		Observables: obs,
	}
	e.Signature = e.computeSignature(nil)
	return e, nil
}

func observableFromMap(m map[string]interface{}) Observable {
	o := Observable{}
	if v, ok := m["value"]; ok {
		o.Value = fmt.Sprintf("%v", v)
	}
	if v, ok := m["data_type"].(string); ok {
		o.DataType = v
	}
	if v, ok := m["tlp"]; ok {
		o.TLP = toInt(v)
	}
	if v, ok := m["tags"].([]string); ok {
		o.Tags = v
	}
	o.IOC, _ = m["ioc"].(bool)
	o.Spotted, _ = m["spotted"].(bool)
	o.Safe, _ = m["safe"].(bool)
	if v, ok := m["source_field"].(string); ok {
		o.SourceField = v
	}
	if v, ok := m["original_source_field"].(string); ok {
		o.OriginalSourceField = v
	}
	return o
}

// NewFromRecord builds an Event from a raw record via construction path B
// (spec.md §4.D). sourceField, if non-empty, selects a nested message
// before extraction; signatureFields, if empty, hashes [title, now].
func NewFromRecord(data map[string]interface{}, base BaseFields, signatureFields []string, mapping []ObservableMapping, sourceField string) (*Event, error) {
	var message interface{} = data
	if sourceField != "" {
		message = ExtractField(data, sourceField)
	}

	e := &Event{
		baseFields:        base,
		signatureFields:   signatureFields,
		observableMapping: mapping,
		message:           message,
		customSeverityMap: base.SeverityMap,
	}

	if base.RuleNameField != "" {
		e.Title = toString(ExtractField(message, base.RuleNameField))
	}
	if base.DescriptionField != "" {
		e.Description = toString(ExtractField(message, base.DescriptionField))
	}
	if base.SourceReferenceField != "" {
		e.Reference = toString(ExtractField(message, base.SourceReferenceField))
	}
	if base.OriginalDateField != "" {
		e.OriginalDate = strings.TrimSuffix(toString(ExtractField(message, base.OriginalDateField)), "Z")
	}

	e.TLP = base.TLP
	e.RiskScore = base.RiskScore
	if base.Source != "" {
		e.Source = base.Source
	} else {
		e.Source = "Unknown"
	}

	severity := 1
	if base.SeverityField != "" {
		raw := ExtractField(message, base.SeverityField)
		var err error
		severity, err = mapSeverity(raw, e.customSeverityMap)
		if err != nil {
			return nil, fmt.Errorf("event: severity field %q: %w", base.SeverityField, err)
		}
	}
	e.Severity = severity

	e.Tags = append(e.Tags, base.StaticTags...)
	for _, field := range base.TagFields {
		val := ExtractField(message, field)
		if val == nil {
			continue
		}
		e.Tags = append(e.Tags, fmt.Sprintf("%s:%v", field, val))
	}

	rawLog, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("event: marshal raw_log: %w", err)
	}
	e.RawLog = string(rawLog)

	observables, err := extractObservables(message, mapping)
	if err != nil {
		return nil, err
	}
	e.Observables = observables

	e.Signature = e.computeSignature(message)
	return e, nil
}

// mapSeverity translates a pre-formed severity value via m (or the
// default map when m is nil). Unknown string/numeric values map to 1; raw
// is rejected with ErrInvalidSeverityType when it is neither a string nor
// a number.
func mapSeverity(raw interface{}, m map[string]int) (int, error) {
	if raw == nil {
		return 1, nil
	}
	switch raw.(type) {
	case string, int, int64, float64, float32:
	default:
		return 0, fmt.Errorf("%w: got %T", agenterrors.ErrInvalidSeverityType, raw)
	}
	table := m
	if table == nil {
		table = defaultSeverityMap
	}
	key := strings.ToLower(toString(raw))
	if v, ok := table[key]; ok {
		return v, nil
	}
	return 1, nil
}

func extractObservables(message interface{}, mapping []ObservableMapping) ([]Observable, error) {
	var result []Observable
	for _, m := range mapping {
		val := ExtractField(message, m.Field)
		if val == nil {
			continue
		}
		sourceField := m.Alias
		if sourceField == "" {
			sourceField = m.Field
		}

		values, isList := val.([]interface{})
		if !isList {
			values = []interface{}{val}
		}
		for _, v := range values {
			result = append(result, Observable{
				Value:               toString(v),
				DataType:            m.DataType,
				TLP:                 m.TLP,
				Tags:                m.Tags,
				IOC:                 m.IOC,
				Spotted:             m.Spotted,
				Safe:                m.Safe,
				SourceField:         sourceField,
				OriginalSourceField: m.Field,
			})
		}
	}
	return result, nil
}

// computeSignature hashes either [title, now] (no signature fields) or the
// ordered tuple of extracted signatureFields values, per spec.md §4.D
// step 8. The hash is a non-security dedup key; MD5 is used purely for its
// determinism and short output, not collision resistance.
func (e *Event) computeSignature(message interface{}) string {
	h := md5.New() //nolint:gosec
	if len(e.signatureFields) == 0 {
		fmt.Fprintf(h, "%s|%s", e.Title, time.Now().UTC().Format(time.RFC3339Nano))
		return hex.EncodeToString(h.Sum(nil))
	}
	for _, field := range e.signatureFields {
		val := ExtractField(message, field)
		fmt.Fprintf(h, "%v|", val)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractField implements the dot-path extraction algorithm of spec.md
// §4.D: a direct key match wins outright; otherwise the path is split on
// "." and walked one segment at a time. When message is a list of
// mappings, extraction maps across elements and flattens one level.
func ExtractField(message interface{}, field string) interface{} {
	if message == nil || field == "" {
		return nil
	}

	if m, ok := message.(map[string]interface{}); ok {
		if v, ok := m[field]; ok {
			return v
		}
	}

	parts := strings.SplitN(field, ".", 2)
	head := parts[0]

	switch m := message.(type) {
	case map[string]interface{}:
		next, ok := m[head]
		if !ok {
			return nil
		}
		if len(parts) == 1 {
			return next
		}
		return ExtractField(next, parts[1])
	case []interface{}:
		var out []interface{}
		for _, item := range m {
			val := ExtractField(item, field)
			if val == nil {
				continue
			}
			if nested, ok := val.([]interface{}); ok {
				out = append(out, nested...)
			} else {
				out = append(out, val)
			}
		}
		if out == nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// MarshalJSON serializes the Event. Internal (unexported) fields are never
// serialized. Empty values are skipped only for fields tagged omitempty;
// title, signature, source, severity and tlp are always written. Neither
// behavior can be switched off.
func (e *Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal((*alias)(e))
}
