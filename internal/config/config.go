// Package config implements the agent's persistent configuration document,
// policy ingestion, and the typed, allow-listed setter, per spec.md §4.G.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

// ConsoleInfo describes the single paired console.
type ConsoleInfo struct {
	URL       string `json:"url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	IgnoreTLS bool   `json:"ignore_tls,omitempty"`
}

// AgentConfig is the persisted document described in spec.md §3.
type AgentConfig struct {
	UUID                   string                            `json:"uuid,omitempty"`
	Name                   string                            `json:"name"`
	Roles                  []string                          `json:"roles"`
	RoleConfigs            map[string]map[string]interface{} `json:"role_configs"`
	ConsoleInfo            ConsoleInfo                       `json:"console_info"`
	PolicyUUID             string                            `json:"policy_uuid,omitempty"`
	PolicyRevision         int                               `json:"policy_revision"`
	EventCacheKey          string                            `json:"event_cache_key"`
	EventCacheTTL          int                               `json:"event_cache_ttl"`
	DisableEventCacheCheck bool                              `json:"disable_event_cache_check"`
	HealthCheckInterval    int                               `json:"health_check_interval"`

	path string
}

// updatableKeys is the allow-list for SetValue (spec.md §4.G).
var updatableKeys = map[string]bool{
	"roles":                     true,
	"event_cache_key":           true,
	"event_cache_ttl":           true,
	"health_check_interval":     true,
	"role_configs":              true,
	"disable_event_cache_check": true,
}

// New returns a default AgentConfig for a freshly-installed agent. name
// defaults to the system hostname when empty.
func New(name string) *AgentConfig {
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		}
	}
	return &AgentConfig{
		Name:                name,
		Roles:               []string{},
		RoleConfigs:         map[string]map[string]interface{}{},
		EventCacheKey:       "signature",
		EventCacheTTL:       30,
		HealthCheckInterval: 30,
	}
}

// Load reads the persisted document at path, falling back to defaults
// (without persisting a stub) when it cannot be read.
func Load(path, name string) *AgentConfig {
	cfg := New(name)
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	loaded := New(name)
	if err := json.Unmarshal(data, loaded); err != nil {
		return cfg
	}
	loaded.path = path
	return loaded
}

// Save persists the document as JSON to its configured path.
func (c *AgentConfig) Save() error {
	if c.path == "" {
		return fmt.Errorf("config: no persistent path configured")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", c.path, err)
	}
	return nil
}

// Clear removes the persisted document from disk.
func (c *AgentConfig) Clear() error {
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: remove %s: %w", c.path, err)
	}
	return nil
}

// FromPolicy merges a console-issued policy document into the config, per
// spec.md §4.G: roles are kept unless the policy supplies them.
func (c *AgentConfig) FromPolicy(policy map[string]interface{}) {
	if v, ok := policy["revision"].(int); ok {
		c.PolicyRevision = v
	} else if v, ok := policy["revision"].(float64); ok {
		c.PolicyRevision = int(v)
	}
	if v, ok := policy["uuid"].(string); ok {
		c.PolicyUUID = v
	}
	if v, ok := policy["role_configs"].(map[string]interface{}); ok {
		c.RoleConfigs = toRoleConfigs(v)
	}
	if v, ok := policy["event_cache_key"].(string); ok {
		c.EventCacheKey = v
	}
	if v, ok := toIntOK(policy["event_cache_ttl"]); ok {
		c.EventCacheTTL = v
	}
	if v, ok := policy["disable_event_cache_check"].(bool); ok {
		c.DisableEventCacheCheck = v
	}
	if v, ok := toIntOK(policy["health_check_interval"]); ok {
		c.HealthCheckInterval = v
	}
	if v, ok := policy["console_info"].(map[string]interface{}); ok {
		ci := ConsoleInfo{}
		if url, ok := v["url"].(string); ok {
			ci.URL = url
		}
		if key, ok := v["api_key"].(string); ok {
			ci.APIKey = key
		}
		if ignore, ok := v["ignore_tls"].(bool); ok {
			ci.IgnoreTLS = ignore
		}
		c.ConsoleInfo = ci
	}
	if raw, ok := policy["roles"].([]interface{}); ok {
		roles := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		c.Roles = roles
	}
}

// PolicyChanged reports whether newPolicy's uuid or revision differs from
// the stored values (the Open-Questions decision: either difference
// triggers reconciliation).
func (c *AgentConfig) PolicyChanged(newPolicy map[string]interface{}) bool {
	uuid, _ := newPolicy["uuid"].(string)
	revision, _ := toIntOK(newPolicy["revision"])
	return uuid != c.PolicyUUID || revision != c.PolicyRevision
}

// AddPairedConsole records a newly paired console. Per spec.md's Open
// Questions, this fails with ErrConsoleAlreadyPaired when the *existing*
// URL matches the new one -- counter-intuitive, kept as-is.
func (c *AgentConfig) AddPairedConsole(url, apiKey string) error {
	if c.ConsoleInfo.URL == url {
		return agenterrors.ErrConsoleAlreadyPaired
	}
	c.ConsoleInfo = ConsoleInfo{URL: url, APIKey: apiKey}
	return nil
}

// RemovePairedConsole clears the paired console, failing with
// ErrConsoleNotPaired when url does not match the stored one.
func (c *AgentConfig) RemovePairedConsole(url string) error {
	if c.ConsoleInfo.URL != url {
		return agenterrors.ErrConsoleNotPaired
	}
	c.ConsoleInfo = ConsoleInfo{}
	return nil
}

// SetValue applies a string-typed update to one of the allow-listed keys,
// coercing value to the field's current Go type. Strings "true"/"false"
// coerce to bool first.
func (c *AgentConfig) SetValue(key, value string) error {
	if !updatableKeys[key] {
		return agenterrors.ErrConfigKeyUnknown
	}

	switch key {
	case "roles":
		if value == "" {
			c.Roles = []string{}
		} else {
			c.Roles = splitCSV(value)
		}
	case "event_cache_key":
		c.EventCacheKey = value
	case "event_cache_ttl":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: event_cache_ttl must be an integer", agenterrors.ErrConfigKeyImmutable)
		}
		c.EventCacheTTL = n
	case "health_check_interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: health_check_interval must be an integer", agenterrors.ErrConfigKeyImmutable)
		}
		c.HealthCheckInterval = n
	case "disable_event_cache_check":
		b, ok := coerceBool(value)
		if !ok {
			return fmt.Errorf("%w: disable_event_cache_check must be a boolean", agenterrors.ErrConfigKeyImmutable)
		}
		c.DisableEventCacheCheck = b
	case "role_configs":
		var parsed map[string]map[string]interface{}
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return fmt.Errorf("%w: role_configs must be JSON", agenterrors.ErrConfigKeyImmutable)
		}
		c.RoleConfigs = parsed
	}
	return nil
}

func coerceBool(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		result = append(result, strings.TrimSpace(p))
	}
	return result
}

func toIntOK(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toRoleConfigs(v map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(v))
	for k, raw := range v {
		if m, ok := raw.(map[string]interface{}); ok {
			out[k] = m
		}
	}
	return out
}
