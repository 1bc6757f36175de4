package connection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

func TestAddAndGet(t *testing.T) {
	r := NewRegistry()
	conn := BuildHTTP("https://console.example", "key", false, Default)

	require.NoError(t, r.Add(conn))
	assert.Equal(t, conn, r.Get(Default))
	assert.Equal(t, conn, r.Get(""))
}

func TestAddDuplicateFails(t *testing.T) {
	r := NewRegistry()
	conn := BuildHTTP("https://console.example", "key", false, "input-a")
	require.NoError(t, r.Add(conn))

	err := r.Add(BuildHTTP("https://other.example", "key2", false, "input-a"))
	assert.True(t, errors.Is(err, agenterrors.ErrDuplicateConnection))
}

func TestRemoveThenAddSucceeds(t *testing.T) {
	r := NewRegistry()
	conn := BuildHTTP("https://console.example", "key", false, "input-a")
	require.NoError(t, r.Add(conn))
	require.NoError(t, r.Remove("input-a"))

	assert.Nil(t, r.Get("input-a"))
	require.NoError(t, r.Add(conn))
	assert.Equal(t, conn, r.Get("input-a"))
}

func TestRemoveMissingFails(t *testing.T) {
	r := NewRegistry()
	err := r.Remove("missing")
	assert.True(t, errors.Is(err, agenterrors.ErrConnectionNotExist))
}

func TestBuildManagementRegistersGlobally(t *testing.T) {
	r := NewRegistry()
	conn, err := r.BuildManagement("https://console.example", "key", false, Default, "reflexsoar-agent/1.0", true)
	require.NoError(t, err)
	assert.Equal(t, conn, r.Get(Default))
}

func TestBuildManagementWithoutRegistering(t *testing.T) {
	r := NewRegistry()
	_, err := r.BuildManagement("https://console.example", "key", false, Default, "reflexsoar-agent/1.0", false)
	require.NoError(t, err)
	assert.Nil(t, r.Get(Default))
}
