package vault

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(t.TempDir(), "test-vault.yml", []byte("master-key"))
	require.NoError(t, err)
	return v
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	v := newTestVault(t)

	id, err := v.Create("alice", "s3cr3t")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cred := v.Get(id)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cr3t", cred.Password)
}

func TestGetMissingReturnsNil(t *testing.T) {
	v := newTestVault(t)
	assert.Nil(t, v.Get("does-not-exist"))
}

func TestDeleteRemovesEntry(t *testing.T) {
	v := newTestVault(t)
	id, err := v.Create("bob", "hunter2")
	require.NoError(t, err)

	require.NoError(t, v.Delete(id, false))
	assert.Nil(t, v.Get(id))
}

func TestUpdateOverwritesEntry(t *testing.T) {
	v := newTestVault(t)
	id, err := v.Create("carol", "old-pass")
	require.NoError(t, err)

	require.NoError(t, v.Update(id, "carol", "new-pass"))
	cred := v.Get(id)
	require.NotNil(t, cred)
	assert.Equal(t, "new-pass", cred.Password)
}

func TestRefreshLoadsConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	name := "shared.yml"

	writer, err := New(dir, name, []byte("master-key"))
	require.NoError(t, err)
	reader, err := New(dir, name, []byte("master-key"))
	require.NoError(t, err)

	id, err := writer.Create("dave", "pw")
	require.NoError(t, err)

	assert.Nil(t, reader.Get(id))
	require.NoError(t, reader.Refresh())
	cred := reader.Get(id)
	require.NotNil(t, cred)
	assert.Equal(t, "dave", cred.Username)
}

func TestConcurrentCreateProducesDistinctUUIDs(t *testing.T) {
	v := newTestVault(t)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := v.Create("user", "pw")
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	require.NoError(t, v.Refresh())
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate uuid %s", id)
		seen[id] = true
		assert.NotNil(t, v.Get(id))
	}
}

func TestEmptyVaultOptionSkipsFileRequirement(t *testing.T) {
	dir := t.TempDir()
	v, err := New(dir, "lazy.yml", []byte("master-key"), WithEmptyVault())
	require.NoError(t, err)
	assert.Nil(t, v.Get("anything"))

	_, statErr := filepath.Glob(filepath.Join(dir, "lazy.yml"))
	assert.NoError(t, statErr)
}

func TestNewInitializesMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, "created.yml", []byte("master-key"))
	require.NoError(t, err)

	path := filepath.Join(dir, "created.yml")
	_, err = os.Stat(path)
	require.NoError(t, err)
}
