// Package lua runs scripts on the gopher-lua virtual machine.
package lua

import (
	"context"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine creates Lua runtimes.
type Engine struct{}

// NewEngine returns the Lua engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Type() types.Type {
	return types.Lua
}

func (e *Engine) NewRuntime(_ context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	return newRuntime(cfg), nil
}
