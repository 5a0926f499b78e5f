package risor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	risorLib "github.com/risor-io/risor"
	risorCompiler "github.com/risor-io/risor/compiler"
	risorErrors "github.com/risor-io/risor/errz"
	risorParser "github.com/risor-io/risor/parser"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
)

// ResultKey names the variable holding a script's final value when that value is not a map.
const ResultKey = "result"

// Runtime runs Risor scripts. Like Tengo, Risor resolves global names at compile time, so a
// program is compiled once per distinct set of bound variable names. Every Exec runs on a fresh
// VM.
//
// Risor has no top-level variable export: the value of the script's last expression is the
// result. A map result becomes the returned variables; any other value is returned as ResultKey.
type Runtime struct {
	logger *slog.Logger

	mode       options.CompileMode
	loadPaths  []string
	home       string
	searchPath []string

	defaultGlobals []string
	closed         atomic.Bool
}

type program struct {
	name   string
	source string
	owner  *Runtime

	mu       sync.Mutex
	compiled map[string]*risorCompiler.Code
}

func (p *program) Name() string { return p.name }

func newRuntime(cfg platform.RuntimeConfig) *Runtime {
	_, logger := helpers.SetupLogger(cfg.Handler, "risor", "Runtime")
	return &Runtime{
		logger:         logger,
		mode:           options.DefaultCompileMode,
		defaultGlobals: risorLib.NewConfig().GlobalNames(),
	}
}

func (r *Runtime) String() string {
	return "risor.Runtime"
}

// SetCompileMode selects whether compiled bytecode is reused between evaluations.
func (r *Runtime) SetCompileMode(mode options.CompileMode) error {
	r.mode = mode
	return nil
}

// SetLoadPaths records the library directories. Risor scripts are self-contained here: imports
// are served by the built-in modules only.
func (r *Runtime) SetLoadPaths(paths []string) error {
	r.loadPaths = slices.Clone(paths)
	r.rebuildSearchPath()
	return nil
}

// SetHomeDirectory records dir and dir/lib as part of the search path.
func (r *Runtime) SetHomeDirectory(dir string) error {
	r.home = dir
	r.rebuildSearchPath()
	return nil
}

// HomeDirectory returns the configured home directory, empty when unset.
func (r *Runtime) HomeDirectory() string {
	return r.home
}

// SearchPath returns the configured library directories, in order.
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
func (r *Runtime) Compile(ctx context.Context, name string, source []byte) (platform.Program, error) {
	if r.closed.Load() {
		return nil, platform.ErrRuntimeClosed
	}
	if err := parse(ctx, string(source)); err != nil {
		return nil, err
	}
	return &program{
		name:     name,
		source:   string(source),
		owner:    r,
		compiled: make(map[string]*risorCompiler.Code),
	}, nil
}

func parse(ctx context.Context, source string) error {
	if _, err := risorParser.Parse(ctx, source); err != nil {
		errMsg := err.Error()
		var friendlyErr risorErrors.FriendlyError
		if errors.As(err, &friendlyErr) {
			errMsg = friendlyErr.FriendlyErrorMessage()
		}
		return fmt.Errorf("%w: %s", ErrCompileFailed, errMsg)
	}
	return nil
}

// Exec runs prog on a new VM. opts.ExposeToModules has no effect: Risor's built-in modules never
// see script globals.
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

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	code, err := r.compiledFor(ctx, p, names)
	if err != nil {
		return nil, err
	}

	evalOpts := make([]risorLib.Option, 0, len(names))
	for _, name := range names {
		evalOpts = append(evalOpts, risorLib.WithGlobal(name, toRisor(vars[name])))
	}

	result, err := risorLib.EvalCode(ctx, code, evalOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	if result == nil {
		return platform.Bindings{}, nil
	}

	switch result.Type() {
	case "error":
		return nil, fmt.Errorf("%w: %w: %s", ErrExecFailed, ErrScriptError, result.Inspect())
	case "nil":
		return platform.Bindings{}, nil
	case "function", "builtin", "module":
		logger.DebugContext(ctx, "ignoring non-data result", "script", p.name, "type", result.Type())
		return platform.Bindings{}, nil
	}

	value := result.Interface()
	if m, ok := value.(map[string]any); ok {
		out := make(platform.Bindings, len(m))
		for k, v := range m {
			if platform.IsHostBinding(k) {
				continue
			}
			out[k] = v
		}
		return out, nil
	}
	return platform.Bindings{ResultKey: value}, nil
}

func (r *Runtime) compiledFor(
	ctx context.Context,
	p *program,
	names []string,
) (*risorCompiler.Code, error) {
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

	ast, err := risorParser.Parse(ctx, p.source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompileFailed, p.name, err)
	}
	globalNames := slices.Clone(r.defaultGlobals)
	for _, name := range names {
		if !slices.Contains(globalNames, name) {
			globalNames = append(globalNames, name)
		}
	}
	code, err := risorCompiler.Compile(ast, risorCompiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompileFailed, p.name, err)
	}

	if cache {
		p.mu.Lock()
		p.compiled[key] = code
		p.mu.Unlock()
	}
	return code, nil
}

func (r *Runtime) Close(_ context.Context) error {
	r.closed.Store(true)
	return nil
}
