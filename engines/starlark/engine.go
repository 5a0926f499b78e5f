// Package starlark runs scripts on the go.starlark.net interpreter.
package starlark

import (
	"context"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine creates Starlark runtimes.
type Engine struct{}

// NewEngine returns the Starlark engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Type() types.Type {
	return types.Starlark
}

func (e *Engine) NewRuntime(_ context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	return newRuntime(cfg), nil
}
