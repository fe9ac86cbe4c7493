package actions

import (
	"context"

	"github.com/relloyd/etl-engine/engine"
)

type ConnectionGetterSetter interface {
	Get(key string, out interface{}) error
	Set(key string, val interface{}) error
	Delete(key string) error
}

type ConnectionValidator interface {
	Parse() error
	GetMap(m map[string]string) map[string]string
	GetScheme() (string, error)
}

// ScenarioExecutor runs requests; *engine.EtlProcess is the production implementation.
type ScenarioExecutor interface {
	Execute(ctx context.Context, req *engine.Request) *engine.Response
}
