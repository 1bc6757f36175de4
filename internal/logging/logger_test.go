package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsInvalidLevel(t *testing.T) {
	l := New("agent", "not-a-level", "json")
	require.NotNil(t, l)
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestNewTextFormatter(t *testing.T) {
	l := New("agent", "debug", "text")
	assert.Equal(t, "debug", l.GetLevel().String())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestWithContextStampsTraceAndRole(t *testing.T) {
	l := New("agent", "info", "json")
	ctx := WithTraceID(context.Background(), "abc-123")
	ctx = WithRole(ctx, "poller")

	entry := l.WithContext(ctx)
	assert.Equal(t, "agent", entry.Data["service"])
	assert.Equal(t, "abc-123", entry.Data["trace_id"])
	assert.Equal(t, "poller", entry.Data["role"])
}

func TestWithFieldsStampsService(t *testing.T) {
	l := New("agent", "info", "json")
	entry := l.WithFields(nil)
	assert.Equal(t, "agent", entry.Data["service"])
}

func TestNewTraceIDUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEqual(t, a, b)
}
