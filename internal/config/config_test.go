package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

func TestNewDefaultsName(t *testing.T) {
	c := New("")
	assert.NotEmpty(t, c.Name)
	assert.Equal(t, "signature", c.EventCacheKey)
	assert.Equal(t, 30, c.EventCacheTTL)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent-config.json")

	c := New("agent-1")
	c.path = path
	c.Roles = []string{"poller", "detector"}
	require.NoError(t, c.Save())

	loaded := Load(path, "")
	assert.Equal(t, []string{"poller", "detector"}, loaded.Roles)
	assert.Equal(t, "agent-1", loaded.Name)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	loaded := Load(filepath.Join(dir, "nope.json"), "fallback")
	assert.Equal(t, "fallback", loaded.Name)
}

func TestClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent-config.json")
	c := New("agent-1")
	c.path = path
	require.NoError(t, c.Save())
	require.NoError(t, c.Clear())

	loaded := Load(path, "x")
	assert.Equal(t, "x", loaded.Name)
}

func TestFromPolicyMergesFields(t *testing.T) {
	c := New("agent-1")
	policy := map[string]interface{}{
		"uuid":                  "policy-uuid",
		"revision":              float64(4),
		"event_cache_key":       "observable",
		"event_cache_ttl":       float64(60),
		"health_check_interval": float64(15),
		"roles":                 []interface{}{"poller"},
	}
	c.FromPolicy(policy)
	assert.Equal(t, "policy-uuid", c.PolicyUUID)
	assert.Equal(t, 4, c.PolicyRevision)
	assert.Equal(t, "observable", c.EventCacheKey)
	assert.Equal(t, 60, c.EventCacheTTL)
	assert.Equal(t, 15, c.HealthCheckInterval)
	assert.Equal(t, []string{"poller"}, c.Roles)
}

func TestPolicyChangedDetectsUUIDOrRevisionDiff(t *testing.T) {
	c := New("agent-1")
	c.PolicyUUID = "abc"
	c.PolicyRevision = 1

	assert.False(t, c.PolicyChanged(map[string]interface{}{"uuid": "abc", "revision": 1}))
	assert.True(t, c.PolicyChanged(map[string]interface{}{"uuid": "abc", "revision": 2}))
	assert.True(t, c.PolicyChanged(map[string]interface{}{"uuid": "xyz", "revision": 1}))
}

func TestAddPairedConsoleFailsWhenURLMatchesExisting(t *testing.T) {
	c := New("agent-1")
	require.NoError(t, c.AddPairedConsole("https://console.example", "key-1"))

	err := c.AddPairedConsole("https://console.example", "key-2")
	assert.True(t, errors.Is(err, agenterrors.ErrConsoleAlreadyPaired))
}

func TestRemovePairedConsoleRequiresMatchingURL(t *testing.T) {
	c := New("agent-1")
	require.NoError(t, c.AddPairedConsole("https://console.example", "key-1"))

	err := c.RemovePairedConsole("https://other.example")
	assert.True(t, errors.Is(err, agenterrors.ErrConsoleNotPaired))

	require.NoError(t, c.RemovePairedConsole("https://console.example"))
	assert.Empty(t, c.ConsoleInfo.URL)
}

func TestSetValueUnknownKeyFails(t *testing.T) {
	c := New("agent-1")
	err := c.SetValue("not_a_real_key", "x")
	assert.True(t, errors.Is(err, agenterrors.ErrConfigKeyUnknown))
}

func TestSetValueCoercesTypes(t *testing.T) {
	c := New("agent-1")
	require.NoError(t, c.SetValue("event_cache_ttl", "120"))
	assert.Equal(t, 120, c.EventCacheTTL)

	require.NoError(t, c.SetValue("disable_event_cache_check", "true"))
	assert.True(t, c.DisableEventCacheCheck)

	require.NoError(t, c.SetValue("roles", "poller, detector"))
	assert.Equal(t, []string{"poller", "detector"}, c.Roles)
}

func TestSetValueRejectsBadInt(t *testing.T) {
	c := New("agent-1")
	err := c.SetValue("event_cache_ttl", "not-a-number")
	assert.Error(t, err)
}

func TestSetValueRoleConfigsParsesJSON(t *testing.T) {
	c := New("agent-1")
	require.NoError(t, c.SetValue("role_configs", `{"poller":{"interval":30}}`))
	assert.Equal(t, float64(30), c.RoleConfigs["poller"]["interval"])
}
