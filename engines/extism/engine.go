// Package extism runs WebAssembly modules through the Extism SDK. A "script" is a compiled module
// exporting an entry point that takes and returns JSON.
package extism

import (
	"context"

	extismSDK "github.com/extism/go-sdk"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine creates Extism runtimes.
type Engine struct {
	compile       CompileFunc
	hostFunctions []extismSDK.HostFunction
	enableWASI    bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCompiler replaces the SDK compiler, mostly for tests.
func WithCompiler(fn CompileFunc) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.compile = fn
		}
	}
}

// WithHostFunctions registers extra host functions with every module.
func WithHostFunctions(fns ...extismSDK.HostFunction) EngineOption {
	return func(e *Engine) {
		e.hostFunctions = append(e.hostFunctions, fns...)
	}
}

// WithWASI toggles WASI support for guests. It is on by default.
func WithWASI(enabled bool) EngineOption {
	return func(e *Engine) {
		e.enableWASI = enabled
	}
}

// NewEngine returns the Extism engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{compile: compileSDK, enableWASI: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Type() types.Type {
	return types.Extism
}

func (e *Engine) NewRuntime(_ context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	entryPoint := cfg.EntryPoint
	if entryPoint == "" {
		entryPoint = options.DefaultEntryPoint
	}
	return newRuntime(e, cfg, entryPoint), nil
}
