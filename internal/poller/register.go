package poller

import (
	"github.com/reflexsoar/reflex-agent-go/internal/role"
	"github.com/reflexsoar/reflex-agent-go/internal/roleregistry"
)

func init() {
	roleregistry.Register(ShortName, func(cfg map[string]interface{}, deps roleregistry.Deps) role.Role {
		return New(deps.Client, deps.Events, deps.Metrics, deps.Logger)
	})
}
