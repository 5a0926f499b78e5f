package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	starlarkLib "go.starlark.net/starlark"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
)

// Runtime is a Starlark interpreter. Compiled programs are immutable and may run on any number
// of threads; each Exec gets its own thread and top-level globals.
type Runtime struct {
	logger     *slog.Logger
	fs         afero.Fs
	concurrent bool

	mode       options.CompileMode
	loadPaths  []string
	home       string
	searchPath []string

	modules *moduleCache
	closed  atomic.Bool
}

type program struct {
	name  string
	prog  *starlarkLib.Program
	owner *Runtime
}

func (p *program) Name() string { return p.name }

func newRuntime(cfg platform.RuntimeConfig) *Runtime {
	_, logger := helpers.SetupLogger(cfg.Handler, "starlark", "Runtime")
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Runtime{
		logger:     logger,
		fs:         fs,
		concurrent: cfg.Concurrent,
		mode:       options.DefaultCompileMode,
		modules:    newModuleCache(),
	}
}

func (r *Runtime) String() string {
	return "starlark.Runtime"
}

// SetCompileMode selects whether loaded modules are cached. Scripts are always compiled to
// bytecode; the container decides whether the program is reused.
func (r *Runtime) SetCompileMode(mode options.CompileMode) error {
	r.mode = mode
	return nil
}

// SetLoadPaths sets the directories searched by load().
func (r *Runtime) SetLoadPaths(paths []string) error {
	r.loadPaths = slices.Clone(paths)
	r.rebuildSearchPath()
	return nil
}

// SetHomeDirectory appends dir and dir/lib to the load() search path.
func (r *Runtime) SetHomeDirectory(dir string) error {
	r.home = dir
	r.rebuildSearchPath()
	return nil
}

// HomeDirectory returns the configured home directory, empty when unset.
func (r *Runtime) HomeDirectory() string {
	return r.home
}

// SearchPath returns the directories load() consults, in order.
func (r *Runtime) SearchPath() []string {
	return slices.Clone(r.searchPath)
}

func (r *Runtime) rebuildSearchPath() {
	sp := slices.Clone(r.loadPaths)
	if r.home != "" {
		sp = append(sp, r.home, filepath.Join(r.home, "lib"))
	}
	r.searchPath = sp
}

func (r *Runtime) Compile(_ context.Context, name string, source []byte) (platform.Program, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	prog, err := compile(name, source)
	if err != nil {
		return nil, err
	}
	return &program{name: name, prog: prog, owner: r}, nil
}

func compile(name string, source []byte) (*starlarkLib.Program, error) {
	f, err := fileOptions().Parse(name, source, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	prog, err := starlarkLib.FileProgram(f, isPredeclared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return prog, nil
}

func (r *Runtime) Exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
	opts platform.ExecOptions,
) (platform.Bindings, error) {
	logger := r.logger.WithGroup("Exec")
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	p, ok := prog.(*program)
	if !ok || p.owner != r {
		return nil, platform.ErrForeignProgram
	}

	bindings, err := toStarlarkDict(vars, r.concurrent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	globals := predeclared(bindings)

	loadCtx := &loadContext{runtime: r, ctx: ctx, cache: r.modules}
	if opts.ExposeToModules {
		loadCtx.globals = bindings
		loadCtx.cache = newModuleCache()
	}
	if r.mode == options.CompileOff {
		loadCtx.cache = newModuleCache()
	}

	thread := r.newThread(ctx, p.name, loadCtx, nil)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	result, err := p.prog.Init(thread, globals)
	if err != nil {
		var evalErr *starlarkLib.EvalError
		if errors.As(err, &evalErr) {
			logger.DebugContext(ctx, "script failed", "script", p.name, "backtrace", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}

	out := make(platform.Bindings, len(result))
	for k, v := range result {
		if r.concurrent {
			v.Freeze()
		}
		out[k] = v
	}
	return out, nil
}

func (r *Runtime) newThread(
	ctx context.Context,
	name string,
	lc *loadContext,
	stack []string,
) *starlarkLib.Thread {
	thread := &starlarkLib.Thread{
		Name: name,
		Print: func(thread *starlarkLib.Thread, msg string) {
			r.logger.InfoContext(ctx, msg, "thread", thread.Name)
		},
		Load: func(thread *starlarkLib.Thread, module string) (starlarkLib.StringDict, error) {
			return lc.load(thread, module, stack)
		},
	}
	thread.SetLocal(ctxLocalKey, ctx)
	return thread
}

func (r *Runtime) Close(_ context.Context) error {
	r.closed.Store(true)
	r.modules.reset()
	return nil
}

type loadContext struct {
	runtime *Runtime
	ctx     context.Context
	cache   *moduleCache
	globals starlarkLib.StringDict

	// waiting is the entry this evaluation is blocked on; guarded by cache.mu.
	waiting *moduleEntry
}

// load resolves module along the search path and executes it once per cache. stack holds the
// modules being loaded on this chain, to report cycles instead of deadlocking.
func (lc *loadContext) load(
	_ *starlarkLib.Thread,
	module string,
	stack []string,
) (starlarkLib.StringDict, error) {
	r := lc.runtime
	path, ok := loader.FindInPath(r.fs, r.searchPath, module, moduleExt)
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrModuleNotFound, module)
	}
	if slices.Contains(stack, path) {
		return nil, fmt.Errorf("%w: %s", ErrLoadCycle, path)
	}

	return lc.cache.get(lc, path, func() (starlarkLib.StringDict, error) {
		source, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return nil, err
		}
		prog, err := compile(path, source)
		if err != nil {
			return nil, err
		}
		thread := r.newThread(lc.ctx, path, lc, append(slices.Clone(stack), path))
		stop := context.AfterFunc(lc.ctx, func() { thread.Cancel(context.Cause(lc.ctx).Error()) })
		defer stop()
		globals, err := prog.Init(thread, predeclared(lc.globals))
		if err != nil {
			return nil, err
		}
		globals.Freeze()
		return globals, nil
	})
}

type moduleEntry struct {
	owner   *loadContext
	ready   chan struct{}
	globals starlarkLib.StringDict
	err     error
}

type moduleCache struct {
	mu      sync.Mutex
	entries map[string]*moduleEntry
}

func newModuleCache() *moduleCache {
	return &moduleCache{entries: make(map[string]*moduleEntry)}
}

// get returns the cached module or runs exec once. Concurrent callers wait for the first, unless
// the owner of the pending entry is itself waiting, directly or transitively, on lc.
func (c *moduleCache) get(
	lc *loadContext,
	path string,
	exec func() (starlarkLib.StringDict, error),
) (starlarkLib.StringDict, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &moduleEntry{owner: lc, ready: make(chan struct{})}
		c.entries[path] = e
		c.mu.Unlock()

		e.globals, e.err = exec()

		c.mu.Lock()
		e.owner = nil
		if e.err != nil {
			delete(c.entries, path)
		}
		c.mu.Unlock()
		close(e.ready)
		return e.globals, e.err
	}

	if c.waitsOn(e, lc) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLoadCycle, path)
	}
	lc.waiting = e
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		lc.waiting = nil
		c.mu.Unlock()
	}()

	select {
	case <-e.ready:
		return e.globals, e.err
	case <-lc.ctx.Done():
		return nil, context.Cause(lc.ctx)
	}
}

// waitsOn walks the chain of owners starting at e and reports whether it reaches lc.
// Callers hold c.mu.
func (c *moduleCache) waitsOn(e *moduleEntry, lc *loadContext) bool {
	for owner := e.owner; owner != nil; {
		if owner == lc {
			return true
		}
		next := owner.waiting
		if next == nil {
			return false
		}
		owner = next.owner
	}
	return false
}

func (c *moduleCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*moduleEntry)
}
