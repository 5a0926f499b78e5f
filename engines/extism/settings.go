package extism

import (
	extismSDK "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero"

	"github.com/robbyt/go-scriptsvc/options"
)

// Settings hold what is needed to compile a module.
type Settings struct {
	EnableWASI    bool
	RuntimeConfig wazero.RuntimeConfig
	HostFunctions []extismSDK.HostFunction
	// AllowedPaths maps host directories to guest directories, for WASI filesystem access.
	AllowedPaths map[string]string
}

// runtimeConfigFor maps the interpreter compile mode onto the wazero engine: forced compilation
// uses the ahead-of-time compiler, off uses the interpreter and jit lets wazero pick.
func runtimeConfigFor(mode options.CompileMode) wazero.RuntimeConfig {
	var cfg wazero.RuntimeConfig
	switch mode {
	case options.CompileForced:
		cfg = wazero.NewRuntimeConfigCompiler()
	case options.CompileOff:
		cfg = wazero.NewRuntimeConfigInterpreter()
	default:
		cfg = wazero.NewRuntimeConfig()
	}
	return cfg.WithCloseOnContextDone(true)
}
