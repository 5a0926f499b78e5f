package lua

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
)

const moduleExt = ".lua"

// Runtime runs compiled function prototypes on a pool of Lua states. Each Exec borrows a state
// and runs the chunk in a fresh environment table, so top-level assignments never leak between
// evaluations. Variables defined by a script are returned as plain Go data.
type Runtime struct {
	logger *slog.Logger
	fs     afero.Fs

	mode       options.CompileMode
	loadPaths  []string
	home       string
	searchPath []string

	mu     sync.Mutex
	idle   []*lua.LState
	protos map[string]*lua.FunctionProto
	closed atomic.Bool
}

type program struct {
	name  string
	proto *lua.FunctionProto
	owner *Runtime
}

func (p *program) Name() string { return p.name }

func newRuntime(cfg platform.RuntimeConfig) *Runtime {
	_, logger := helpers.SetupLogger(cfg.Handler, "lua", "Runtime")
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Runtime{
		logger: logger,
		fs:     fs,
		mode:   options.DefaultCompileMode,
		protos: make(map[string]*lua.FunctionProto),
	}
}

func (r *Runtime) String() string {
	return "lua.Runtime"
}

// SetCompileMode selects whether required modules are cached as compiled prototypes.
func (r *Runtime) SetCompileMode(mode options.CompileMode) error {
	r.mode = mode
	return nil
}

// SetLoadPaths sets the directories searched by require().
func (r *Runtime) SetLoadPaths(paths []string) error {
	r.loadPaths = slices.Clone(paths)
	r.rebuildSearchPath()
	return nil
}

// SetHomeDirectory appends dir and dir/lib to the require() search path.
func (r *Runtime) SetHomeDirectory(dir string) error {
	r.home = dir
	r.rebuildSearchPath()
	return nil
}

// HomeDirectory returns the configured home directory, empty when unset.
func (r *Runtime) HomeDirectory() string {
	return r.home
}

// SearchPath returns the directories require() consults, in order.
func (r *Runtime) SearchPath() []string {
	return slices.Clone(r.searchPath)
}

// PackagePath is the package.path value set on each state.
func (r *Runtime) PackagePath() string {
	patterns := make([]string, 0, len(r.searchPath))
	for _, dir := range r.searchPath {
		patterns = append(patterns, filepath.Join(dir, "?"+moduleExt))
	}
	return strings.Join(patterns, ";")
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
	proto, err := compile(name, source)
	if err != nil {
		return nil, err
	}
	return &program{name: name, proto: proto, owner: r}, nil
}

func compile(name string, source []byte) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(bytes.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return proto, nil
}

func (r *Runtime) Exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
	opts platform.ExecOptions,
) (platform.Bindings, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	p, ok := prog.(*program)
	if !ok || p.owner != r {
		return nil, platform.ErrForeignProgram
	}

	L := r.acquire()
	defer r.release(L)
	L.SetContext(ctx)
	defer L.RemoveContext()

	bindings := L.NewTable()
	for k, v := range vars {
		lv, err := toLua(L, v)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to convert binding %q: %w", ErrExecFailed, k, err)
		}
		bindings.RawSetString(k, lv)
		if opts.ExposeToModules {
			L.SetGlobal(k, lv)
		}
	}
	if opts.ExposeToModules {
		defer func() {
			for k := range vars {
				L.SetGlobal(k, lua.LNil)
			}
		}()
	}

	// env -> bindings -> _G
	globalsMeta := L.NewTable()
	L.SetField(globalsMeta, "__index", L.Get(lua.GlobalsIndex))
	L.SetMetatable(bindings, globalsMeta)
	envMeta := L.NewTable()
	L.SetField(envMeta, "__index", bindings)
	env := L.NewTable()
	L.SetMetatable(env, envMeta)

	fn := L.NewFunctionFromProto(p.proto)
	fn.Env = env
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(0)
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	L.SetTop(0)

	out := make(platform.Bindings)
	env.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if gv, ok := fromLua(v); ok {
			out[string(name)] = gv
		}
	})
	return out, nil
}

func (r *Runtime) acquire() *lua.LState {
	r.mu.Lock()
	if n := len(r.idle); n > 0 {
		L := r.idle[n-1]
		r.idle = r.idle[:n-1]
		r.mu.Unlock()
		return L
	}
	r.mu.Unlock()
	return r.newState()
}

func (r *Runtime) release(L *lua.LState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		L.Close()
		return
	}
	r.idle = append(r.idle, L)
}

func (r *Runtime) newState() *lua.LState {
	L := lua.NewState()
	registerMessageType(L)
	L.SetGlobal("print", L.NewFunction(printFunc(r.logger)))

	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if ok {
		L.SetField(pkg, "path", lua.LString(r.PackagePath()))
		if loaders, ok := L.GetField(pkg, "loaders").(*lua.LTable); ok {
			loaders.Insert(2, L.NewFunction(r.searchPathLoader))
		}
	}
	return L
}

// searchPathLoader is a package.loaders entry that finds modules through the runtime filesystem,
// so require() works for scripts kept outside the OS filesystem.
func (r *Runtime) searchPathLoader(L *lua.LState) int {
	name := L.CheckString(1)
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator))
	path, ok := loader.FindInPath(r.fs, r.searchPath, rel, moduleExt)
	if !ok {
		L.Push(lua.LString(fmt.Sprintf("\n\tno module '%s' on the search path", name)))
		return 1
	}

	proto, err := r.moduleProto(path)
	if err != nil {
		L.RaiseError("error loading module '%s': %s", name, err.Error())
		return 0
	}
	L.Push(L.NewFunctionFromProto(proto))
	return 1
}

func (r *Runtime) moduleProto(path string) (*lua.FunctionProto, error) {
	cache := r.mode != options.CompileOff
	if cache {
		r.mu.Lock()
		proto, ok := r.protos[path]
		r.mu.Unlock()
		if ok {
			return proto, nil
		}
	}

	source, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	proto, err := compile(path, source)
	if err != nil {
		return nil, err
	}
	if cache {
		r.mu.Lock()
		r.protos[path] = proto
		r.mu.Unlock()
	}
	return proto, nil
}

func (r *Runtime) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed.Store(true)
	for _, L := range r.idle {
		L.Close()
	}
	r.idle = nil
	r.protos = make(map[string]*lua.FunctionProto)
	return nil
}
