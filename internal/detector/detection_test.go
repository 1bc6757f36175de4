package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestShouldRunMissingLastRunErrors(t *testing.T) {
	r := &Rule{Interval: 30}
	_, err := r.ShouldRun(1440, time.Now().UTC())
	assert.Error(t, err)
}

func TestShouldRunFalseBeforeInterval(t *testing.T) {
	now := mustUTC("2026-07-31T12:00:00Z")
	r := &Rule{Interval: 30, Lookbehind: 30, LastRun: now.Add(-10 * time.Minute)}
	due, err := r.ShouldRun(1440, now)
	assert.NoError(t, err)
	assert.False(t, due)
}

func TestShouldRunTrueAfterInterval(t *testing.T) {
	now := mustUTC("2026-07-31T12:00:00Z")
	r := &Rule{Interval: 30, Lookbehind: 30, LastRun: now.Add(-45 * time.Minute)}
	due, err := r.ShouldRun(1440, now)
	assert.NoError(t, err)
	assert.True(t, due)
}

func TestShouldRunExpandsLookbehindWithinCatchup(t *testing.T) {
	now := mustUTC("2026-07-31T12:00:00Z")
	// last_run = now-70m; next_run = last_run+30m = now-40m; minutes_since = 40,
	// which is > lookbehind(30) but < catchup(1440).
	r := &Rule{Interval: 30, Lookbehind: 30, LastRun: now.Add(-70 * time.Minute)}
	due, err := r.ShouldRun(1440, now)
	assert.NoError(t, err)
	assert.True(t, due)
	assert.Equal(t, 70, r.Lookbehind) // ceil(30 + 40)
}

func TestShouldRunCapsLookbehindAtCatchup(t *testing.T) {
	now := mustUTC("2026-07-31T12:00:00Z")
	// last_run far enough in the past that minutes_since exceeds catchup_period
	r := &Rule{Interval: 30, Lookbehind: 30, LastRun: now.Add(-3000 * time.Minute)}
	due, err := r.ShouldRun(60, now)
	assert.NoError(t, err)
	assert.True(t, due)
	assert.Equal(t, 90, r.Lookbehind) // ceil(30 + 60)
}

func TestShouldRunRespectsMutePeriod(t *testing.T) {
	now := mustUTC("2026-07-31T12:00:00Z")
	r := &Rule{
		Interval:   30,
		Lookbehind: 30,
		LastRun:    now.Add(-45 * time.Minute),
		MutePeriod: 20,
		LastHit:    now.Add(-5 * time.Minute),
	}
	// mute_time = last_hit + 20m = 11:55 + 20m = 12:15, now (12:00) < mute_time -> not due
	due, err := r.ShouldRun(1440, now)
	assert.NoError(t, err)
	assert.False(t, due)
}

func TestParseRuleTypeDefaultsToMatch(t *testing.T) {
	assert.Equal(t, RuleTypeMatch, ParseRuleType("nonsense"))
	assert.Equal(t, RuleTypeThreshold, ParseRuleType("threshold"))
}
