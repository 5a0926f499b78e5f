package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

// Interpreter is a live, configured runtime. Handles are compared by pointer; ID is for logs.
type Interpreter struct {
	id         string
	cfg        *options.Config
	runtime    platform.Runtime
	searchPath []string
	resolver   *loader.Resolver
	cache      *script.Cache
	store      *varStore
	evalMu     *sync.Mutex
	release    func(context.Context) error
	metrics    *telemetry.Metrics
	logger     *slog.Logger

	terminated atomic.Bool
}

func (i *Interpreter) ID() string {
	return i.id
}

func (i *Interpreter) String() string {
	return fmt.Sprintf("container.Interpreter{ID: %s, Language: %s}", i.id, i.cfg.Language)
}

func (i *Interpreter) Language() types.Type {
	return i.cfg.Language
}

// Config returns a copy of the configuration the interpreter was built from.
func (i *Interpreter) Config() *options.Config {
	return i.cfg.Clone()
}

// SearchPath is the directory list handed to the runtime: the load paths, then the library dirs.
func (i *Interpreter) SearchPath() []string {
	return slices.Clone(i.searchPath)
}

// Runtime exposes the underlying runtime.
func (i *Interpreter) Runtime() platform.Runtime {
	return i.runtime
}

// CachedPrograms reports how many compiled programs the interpreter holds.
func (i *Interpreter) CachedPrograms() int {
	if i.cache == nil {
		return 0
	}
	return i.cache.Len()
}

// Variable returns a persisted top-level variable. It is always absent with transient persistence.
func (i *Interpreter) Variable(name string) (any, bool) {
	if i.store == nil {
		return nil, false
	}
	return i.store.get(name)
}

// Precompile resolves and compiles loc ahead of its first evaluation.
func (i *Interpreter) Precompile(ctx context.Context, loc loader.Location) error {
	if i.terminated.Load() {
		return ErrInterpreterTerminated
	}
	_, err := i.program(ctx, loc)
	return err
}

// Eval runs the script at loc with vars bound as top-level variables and returns the variables
// the script defined. Persisted variables are bound underneath vars.
func (i *Interpreter) Eval(
	ctx context.Context,
	loc loader.Location,
	vars platform.Bindings,
) (platform.Bindings, error) {
	if i.terminated.Load() {
		return nil, ErrInterpreterTerminated
	}
	prog, err := i.program(ctx, loc)
	if err != nil {
		return nil, err
	}
	return i.exec(ctx, prog, vars)
}

// EvalLoader is Eval for a source that has no Location, such as inline text from
// loader.NewFromString. Programs are cached by the loader's source URL.
func (i *Interpreter) EvalLoader(
	ctx context.Context,
	ldr loader.Loader,
	vars platform.Bindings,
) (platform.Bindings, error) {
	if i.terminated.Load() {
		return nil, ErrInterpreterTerminated
	}
	prog, err := i.compile(ctx, ldr)
	if err != nil {
		return nil, err
	}
	return i.exec(ctx, prog, vars)
}

func (i *Interpreter) exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
) (platform.Bindings, error) {
	if i.evalMu != nil {
		i.evalMu.Lock()
		defer i.evalMu.Unlock()
	}

	bindings := vars
	if i.store != nil {
		bindings = i.store.snapshot()
		maps.Copy(bindings, vars)
	}

	out, err := i.runtime.Exec(ctx, prog, bindings, platform.ExecOptions{
		ExposeToModules: i.cfg.VariablePersistence == options.PersistGlobal,
	})
	if err != nil {
		return nil, err
	}
	if i.store != nil {
		i.store.merge(out)
	}
	return out, nil
}

// program returns the compiled program for loc, compiling it on a cache miss.
func (i *Interpreter) program(ctx context.Context, loc loader.Location) (platform.Program, error) {
	ldr, err := i.resolver.Resolve(loc, i.searchPath)
	if err != nil {
		return nil, err
	}
	return i.compile(ctx, ldr)
}

// compile returns the program for ldr from the cache, compiling it on a miss.
func (i *Interpreter) compile(ctx context.Context, ldr loader.Loader) (platform.Program, error) {
	name := ldr.GetSourceURL().String()

	if i.cache != nil {
		if exe, ok := i.cache.Get(name); ok {
			i.metrics.RecordCompile(i.cfg.Language.String(), true)
			return exe.Program, nil
		}
	}

	source, err := loader.ReadAll(ldr)
	if err != nil {
		return nil, err
	}
	prog, err := i.runtime.Compile(ctx, name, source)
	if err != nil {
		return nil, err
	}
	i.metrics.RecordCompile(i.cfg.Language.String(), false)

	if i.cache != nil {
		exe := &script.Executable{
			Name:       name,
			Checksum:   helpers.SHA256Bytes(source),
			Program:    prog,
			CompiledAt: time.Now(),
		}
		if disk, ok := ldr.(*loader.FromDisk); ok && disk.OnDisk() {
			exe.Path = disk.Path()
		}
		i.cache.Put(exe)
		i.logger.DebugContext(ctx, "compiled script", "script", name, "checksum", exe.Checksum)
	}
	return prog, nil
}

// Terminated reports whether Terminate has been called.
func (i *Interpreter) Terminated() bool {
	return i.terminated.Load()
}

// Terminate releases the runtime. Only the first call does any work.
func (i *Interpreter) Terminate(ctx context.Context) error {
	if i.terminated.Swap(true) {
		return nil
	}
	var errs []error
	if i.cache != nil {
		errs = append(errs, i.cache.Close())
	}
	if i.release != nil {
		errs = append(errs, i.release(ctx))
	}
	i.logger.DebugContext(ctx, "interpreter terminated")
	return errors.Join(errs...)
}
