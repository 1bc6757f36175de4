package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveConfigPathExplicitWins(t *testing.T) {
	assert.Equal(t, "/tmp/custom.json", resolveConfigPath("/tmp/custom.json"))
}

func TestResolveConfigPathDefaultsUnderHome(t *testing.T) {
	path := resolveConfigPath("")
	assert.Contains(t, path, "persistent-config.json")
}

func TestResolveVaultDirExplicitWins(t *testing.T) {
	assert.Equal(t, "/tmp/vaults", resolveVaultDir("/tmp/vaults"))
}

func TestSplitNonEmptyTrimsAndDropsBlank(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty(" a, b ,, "))
}

func TestSplitNonEmptyEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, splitNonEmpty("   "))
}
