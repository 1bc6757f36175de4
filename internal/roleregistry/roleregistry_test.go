package roleregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/role"
)

type stubRole struct{ name string }

func (s *stubRole) Main(ctx context.Context) error { return nil }
func (s *stubRole) ShortName() string              { return s.name }

func TestRegisterAndGet(t *testing.T) {
	Register("test-role-register-get", func(cfg map[string]interface{}, deps Deps) role.Role {
		return &stubRole{name: "test-role-register-get"}
	})

	factory := Get("test-role-register-get")
	require.NotNil(t, factory)
	r := factory(nil, Deps{})
	assert.Equal(t, "test-role-register-get", r.ShortName())
}

func TestGetUnknownReturnsNil(t *testing.T) {
	assert.Nil(t, Get("no-such-role"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-role-dup", func(cfg map[string]interface{}, deps Deps) role.Role {
		return &stubRole{name: "test-role-dup"}
	})
	assert.Panics(t, func() {
		Register("test-role-dup", func(cfg map[string]interface{}, deps Deps) role.Role {
			return &stubRole{name: "test-role-dup"}
		})
	})
}

func TestNamesSorted(t *testing.T) {
	Register("zz-role", func(cfg map[string]interface{}, deps Deps) role.Role { return &stubRole{name: "zz-role"} })
	Register("aa-role", func(cfg map[string]interface{}, deps Deps) role.Role { return &stubRole{name: "aa-role"} })

	names := Names()
	foundAA, foundZZ := -1, -1
	for i, n := range names {
		if n == "aa-role" {
			foundAA = i
		}
		if n == "zz-role" {
			foundZZ = i
		}
	}
	require.True(t, foundAA >= 0 && foundZZ >= 0)
	assert.Less(t, foundAA, foundZZ)
}
