package extism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/robbyt/go-scriptsvc/engines/extism/adapters"
	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// Runtime compiles modules and runs each evaluation in a fresh plugin instance, so guest memory
// never carries over. Variables travel as JSON in both directions.
type Runtime struct {
	engine     *Engine
	logger     *slog.Logger
	entryPoint string

	mode       options.CompileMode
	loadPaths  []string
	home       string
	searchPath []string

	mu      sync.Mutex
	plugins []adapters.CompiledPlugin
	closed  atomic.Bool
}

type program struct {
	name   string
	plugin adapters.CompiledPlugin
	owner  *Runtime
}

func (p *program) Name() string { return p.name }

func newRuntime(e *Engine, cfg platform.RuntimeConfig, entryPoint string) *Runtime {
	_, logger := helpers.SetupLogger(cfg.Handler, "extism", "Runtime")
	return &Runtime{
		engine:     e,
		logger:     logger,
		entryPoint: entryPoint,
		mode:       options.DefaultCompileMode,
	}
}

func (r *Runtime) String() string {
	return "extism.Runtime"
}

// SetCompileMode selects the wazero engine used for modules compiled afterwards.
func (r *Runtime) SetCompileMode(mode options.CompileMode) error {
	r.mode = mode
	return nil
}

// SetLoadPaths sets the host directories guests may access through WASI.
func (r *Runtime) SetLoadPaths(paths []string) error {
	r.loadPaths = slices.Clone(paths)
	r.rebuildSearchPath()
	return nil
}

// SetHomeDirectory adds dir and dir/lib to the directories guests may access.
func (r *Runtime) SetHomeDirectory(dir string) error {
	r.home = dir
	r.rebuildSearchPath()
	return nil
}

// HomeDirectory returns the configured home directory, empty when unset.
func (r *Runtime) HomeDirectory() string {
	return r.home
}

// SearchPath returns the directories mounted into guests, in order.
func (r *Runtime) SearchPath() []string {
	return slices.Clone(r.searchPath)
}

// EntryPoint is the exported function called by Exec.
func (r *Runtime) EntryPoint() string {
	return r.entryPoint
}

func (r *Runtime) rebuildSearchPath() {
	sp := slices.Clone(r.loadPaths)
	if r.home != "" {
		sp = append(sp, r.home, filepath.Join(r.home, "lib"))
	}
	r.searchPath = sp
}

func (r *Runtime) settings() Settings {
	allowed := make(map[string]string, len(r.searchPath))
	for _, dir := range r.searchPath {
		allowed[dir] = dir
	}
	hostFns := append(slices.Clone(r.engine.hostFunctions), logHostFunction(r.logger))
	return Settings{
		EnableWASI:    r.engine.enableWASI,
		RuntimeConfig: runtimeConfigFor(r.mode),
		HostFunctions: hostFns,
		AllowedPaths:  allowed,
	}
}

func (r *Runtime) Compile(ctx context.Context, name string, source []byte) (platform.Program, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	wasm, err := decodeModule(source)
	if err != nil {
		return nil, err
	}
	plugin, err := r.engine.compile(ctx, wasm, r.settings())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompileFailed, name, err)
	}
	if plugin == nil {
		return nil, fmt.Errorf("%w: %s: compiler returned no plugin", ErrCompileFailed, name)
	}

	r.mu.Lock()
	r.plugins = append(r.plugins, plugin)
	r.mu.Unlock()
	return &program{name: name, plugin: plugin, owner: r}, nil
}

// Exec calls the entry point with the message and plain variables as JSON. Modules cannot see
// one another, so opts.ExposeToModules has no effect on this runtime.
func (r *Runtime) Exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
	_ platform.ExecOptions,
) (platform.Bindings, error) {
	logger := r.logger.WithGroup("Exec")
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	p, ok := prog.(*program)
	if !ok || p.owner != r {
		return nil, platform.ErrForeignProgram
	}

	env, _ := vars[platform.BindingMessage].(envelope.Envelope)
	scriptLogger, _ := vars[platform.BindingLog].(*slog.Logger)
	if scriptLogger == nil {
		scriptLogger = r.logger
	}
	plain := make(map[string]any, len(vars))
	for k, v := range vars {
		if !platform.IsHostBinding(k) {
			plain[k] = v
		}
	}
	input, err := encodeRequest(env, plain)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode input: %w", ErrExecFailed, err)
	}

	ctx = withLogger(ctx, scriptLogger)
	instance, err := p.plugin.Instance(ctx, adapters.NewPluginInstanceConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create plugin instance: %w", ErrExecFailed, err)
	}
	defer func() {
		if err := instance.Close(ctx); err != nil {
			logger.WarnContext(ctx, "failed to close plugin instance", "error", err)
		}
	}()
	instance.SetLogger(sdkLogger(ctx, scriptLogger))

	if !instance.FunctionExists(r.entryPoint) {
		return nil, fmt.Errorf("%w: %q in %s", ErrEntryPointNotFound, r.entryPoint, p.name)
	}

	exit, output, err := instance.CallWithContext(ctx, r.entryPoint, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: cancelled: %w", ErrExecFailed, errors.Join(ctx.Err(), err))
		}
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	if exit != 0 {
		return nil, fmt.Errorf("%w: %s returned exit code %d", ErrExecFailed, r.entryPoint, exit)
	}

	resp, err := decodeResponse(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	resp.apply(env)
	logger.DebugContext(ctx, "exec complete", "script", p.name, "outputBytes", len(output))

	out := make(platform.Bindings, len(resp.Vars))
	maps.Copy(out, resp.Vars)
	return out, nil
}

// Close releases every module compiled by this runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, p := range r.plugins {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.plugins = nil
	return errors.Join(errs...)
}
