package tengo

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	tengoLib "github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/parser"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/spf13/afero"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
)

const moduleExt = ".tengo"

// stdlibModules are the standard modules scripts may import. "os" is left out.
var stdlibModules = []string{"base64", "enum", "fmt", "hex", "json", "math", "rand", "text", "times"}

// Runtime runs Tengo scripts. Tengo resolves global names at compile time, so a program is
// compiled once per distinct set of bound variable names and cloned for each evaluation.
type Runtime struct {
	logger *slog.Logger
	fs     afero.Fs
	stdlib *tengoLib.ModuleMap

	mode       options.CompileMode
	loadPaths  []string
	home       string
	searchPath []string

	mu      sync.Mutex
	sources map[string][]byte
	closed  atomic.Bool
}

type program struct {
	name   string
	source []byte
	owner  *Runtime

	mu       sync.Mutex
	compiled map[string]*tengoLib.Compiled
}

func (p *program) Name() string { return p.name }

func newRuntime(cfg platform.RuntimeConfig) *Runtime {
	_, logger := helpers.SetupLogger(cfg.Handler, "tengo", "Runtime")
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Runtime{
		logger:  logger,
		fs:      fs,
		stdlib:  stdlib.GetModuleMap(stdlibModules...),
		mode:    options.DefaultCompileMode,
		sources: make(map[string][]byte),
	}
}

func (r *Runtime) String() string {
	return "tengo.Runtime"
}

// SetCompileMode selects whether compiled bytecode and imported module sources are reused.
func (r *Runtime) SetCompileMode(mode options.CompileMode) error {
	r.mode = mode
	return nil
}

// SetLoadPaths sets the directories searched by import().
func (r *Runtime) SetLoadPaths(paths []string) error {
	r.loadPaths = slices.Clone(paths)
	r.rebuildSearchPath()
	return nil
}

// SetHomeDirectory appends dir and dir/lib to the import() search path.
func (r *Runtime) SetHomeDirectory(dir string) error {
	r.home = dir
	r.rebuildSearchPath()
	return nil
}

// HomeDirectory returns the configured home directory, empty when unset.
func (r *Runtime) HomeDirectory() string {
	return r.home
}

// SearchPath returns the directories import() consults, in order.
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

// Compile parses source to report syntax errors early. Bytecode is produced on first Exec, once
// the bound variable names are known.
func (r *Runtime) Compile(_ context.Context, name string, source []byte) (platform.Program, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	fileSet := parser.NewFileSet()
	srcFile := fileSet.AddFile(name, -1, len(source))
	if _, err := parser.NewParser(srcFile, source, nil).ParseFile(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return &program{
		name:     name,
		source:   slices.Clone(source),
		owner:    r,
		compiled: make(map[string]*tengoLib.Compiled),
	}, nil
}

// Exec runs prog. Modules imported by the script do not see the bound variables, so
// opts.ExposeToModules has no effect on this runtime.
func (r *Runtime) Exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
	_ platform.ExecOptions,
) (platform.Bindings, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	p, ok := prog.(*program)
	if !ok || p.owner != r {
		return nil, platform.ErrForeignProgram
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	compiled, err := r.compiledFor(p, names)
	if err != nil {
		return nil, err
	}

	run := compiled.Clone()
	bound := make(map[string]tengoLib.Object, len(vars))
	for _, name := range names {
		obj, err := toTengo(ctx, vars[name])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to convert binding %q: %w", ErrExecFailed, name, err)
		}
		if err := run.Set(name, obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
		}
		bound[name] = obj
	}

	if err := run.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}

	out := make(platform.Bindings)
	for _, v := range run.GetAll() {
		obj := v.Object()
		if orig, ok := bound[v.Name()]; ok && orig == obj {
			continue
		}
		if platform.IsHostBinding(v.Name()) {
			continue
		}
		if gv, ok := fromTengo(obj); ok {
			out[v.Name()] = gv
		}
	}
	return out, nil
}

func (r *Runtime) compiledFor(p *program, names []string) (*tengoLib.Compiled, error) {
	key := strings.Join(names, "\x00")
	cache := r.mode != options.CompileOff
	if cache {
		p.mu.Lock()
		c, ok := p.compiled[key]
		p.mu.Unlock()
		if ok {
			return c, nil
		}
	}

	s := tengoLib.NewScript(p.source)
	for _, name := range names {
		if err := s.Add(name, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
		}
	}
	s.SetImports(&moduleGetter{runtime: r})
	c, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompileFailed, p.name, err)
	}
	if cache {
		p.mu.Lock()
		p.compiled[key] = c
		p.mu.Unlock()
	}
	return c, nil
}

func (r *Runtime) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed.Store(true)
	r.sources = make(map[string][]byte)
	return nil
}

// moduleGetter serves the safe standard modules, then source modules found on the search path.
type moduleGetter struct {
	runtime *Runtime
}

func (g *moduleGetter) Get(name string) tengoLib.Importable {
	r := g.runtime
	if m := r.stdlib.Get(name); m != nil {
		return m
	}
	path, ok := loader.FindInPath(r.fs, r.searchPath, name, moduleExt)
	if !ok {
		r.logger.Debug("module not found", "module", name, "searchPath", r.searchPath)
		return nil
	}
	src, err := r.moduleSource(path)
	if err != nil {
		r.logger.Warn("failed to read module", "path", path, "error", err)
		return nil
	}
	return &tengoLib.SourceModule{Src: src}
}

func (r *Runtime) moduleSource(path string) ([]byte, error) {
	cache := r.mode != options.CompileOff
	if cache {
		r.mu.Lock()
		src, ok := r.sources[path]
		r.mu.Unlock()
		if ok {
			return src, nil
		}
	}
	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	if cache {
		r.mu.Lock()
		r.sources[path] = src
		r.mu.Unlock()
	}
	return src, nil
}
