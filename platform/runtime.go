// Package platform defines the contract between the interpreter container and the scripting
// runtimes it drives.
package platform

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
)

// Names of the variables bound into every script by the host.
const (
	// BindingMessage is the per-message envelope, absent for lifecycle scripts.
	BindingMessage = "message"
	// BindingLog is a structured logger scoped to the running script.
	BindingLog = "log"
)

// Bindings are named values made visible to a script as top-level variables. Values are plain Go
// values, an envelope.Envelope, a *slog.Logger, or values previously returned by the same runtime.
type Bindings map[string]any

// IsHostBinding reports whether name is reserved for a host-provided variable.
func IsHostBinding(name string) bool {
	return name == BindingMessage || name == BindingLog
}

// Program is a compiled script, opaque outside the runtime that produced it.
type Program interface {
	// Name is the source URL the program was compiled from.
	Name() string
}

// RuntimeConfig carries the host resources a runtime may use.
type RuntimeConfig struct {
	// Handler receives runtime and script log output.
	Handler slog.Handler
	// Fs is used for module lookups along the search path.
	Fs afero.Fs
	// Concurrent is set when evaluations may run in parallel on this runtime.
	Concurrent bool
	// EntryPoint names the exported function called by runtimes that run compiled modules.
	EntryPoint string
}

// Engine creates runtimes for one scripting language.
type Engine interface {
	Type() types.Type
	NewRuntime(ctx context.Context, cfg RuntimeConfig) (Runtime, error)
}

// ExecOptions tune a single evaluation.
type ExecOptions struct {
	// ExposeToModules makes the bound variables visible to modules loaded during the evaluation.
	ExposeToModules bool
}

// Runtime is a live interpreter instance. Settings are applied once, before the first Compile.
type Runtime interface {
	SetCompileMode(mode options.CompileMode) error
	SetLoadPaths(paths []string) error
	SetHomeDirectory(dir string) error

	// Compile checks and compiles source. name identifies the script in errors and logs.
	Compile(ctx context.Context, name string, source []byte) (Program, error)

	// Exec runs a compiled program with vars bound as top-level variables and returns the
	// top-level variables the script defined, in the runtime's native representation.
	Exec(ctx context.Context, prog Program, vars Bindings, opts ExecOptions) (Bindings, error)

	Close(ctx context.Context) error
}
