// Package tengo runs scripts on the Tengo virtual machine.
package tengo

import (
	"context"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine creates Tengo runtimes.
type Engine struct{}

// NewEngine returns the Tengo engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Type() types.Type {
	return types.Tengo
}

func (e *Engine) NewRuntime(_ context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	return newRuntime(cfg), nil
}
