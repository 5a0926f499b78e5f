// Package risor runs scripts on the Risor virtual machine.
package risor

import (
	"context"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine creates Risor runtimes.
type Engine struct{}

// NewEngine returns the Risor engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Type() types.Type {
	return types.Risor
}

func (e *Engine) NewRuntime(_ context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	return newRuntime(cfg), nil
}
