// Package container builds, reuses and tears down the interpreter a service runs its scripts on.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/robbyt/go-scriptsvc/engines"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

// Factory creates interpreters from an options.Config. It owns the state that outlives a single
// interpreter: the runtimes of the shared context scope and the stores of global variables.
type Factory struct {
	logHandler slog.Handler
	logger     *slog.Logger
	fs         afero.Fs
	resources  afero.Fs
	baseDir    string
	metrics    *telemetry.Metrics
	engines    map[types.Type]platform.Engine

	mu      sync.Mutex
	shared  map[types.Type]*sharedRuntime
	globals map[types.Type]*varStore
}

// sharedRuntime is one runtime used by every shared-scope interpreter of a language.
type sharedRuntime struct {
	runtime platform.Runtime
	store   *varStore
	evalMu  *sync.Mutex
	refs    int
}

// NewFactory creates a Factory. Scripts and library directories are read from the OS filesystem
// unless WithFs says otherwise.
func NewFactory(opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		engines: make(map[types.Type]platform.Engine),
		shared:  make(map[types.Type]*sharedRuntime),
		globals: make(map[types.Type]*varStore),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	f.logHandler, f.logger = helpers.SetupLogger(f.logHandler, "container", "Factory")
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	return f, nil
}

// LogHandler returns the handler interpreters log through.
func (f *Factory) LogHandler() slog.Handler {
	return f.logHandler
}

// Create builds a configured interpreter. The runtime receives, in order: the compile mode, the
// search path (cfg.LoadPaths then the library directories) and, when non-blank, the home dir.
func (f *Factory) Create(ctx context.Context, cfg *options.Config) (*Interpreter, error) {
	logger := f.logger.WithGroup("Create")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	cfg = cfg.Clone()

	libs, err := f.LibraryDirs(cfg)
	if err != nil {
		return nil, err
	}
	searchPath := slices.Concat(cfg.LoadPaths, libs)

	engine, err := f.engineFor(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	interp := &Interpreter{
		id:         uuid.NewString(),
		cfg:        cfg,
		searchPath: searchPath,
		resolver:   &loader.Resolver{Fs: f.fs, Resources: f.resources, BaseDir: f.baseDir},
		metrics:    f.metrics,
	}
	interp.logger = slog.New(f.logHandler.WithGroup("Interpreter")).With("interpreter", interp.id)

	if cfg.ContextScope == options.ScopeShared {
		shared, err := f.acquireShared(ctx, engine, cfg, searchPath)
		if err != nil {
			return nil, err
		}
		interp.runtime = shared.runtime
		interp.evalMu = shared.evalMu
		if cfg.VariablePersistence != options.PersistTransient {
			interp.store = shared.store
		}
		interp.release = func(ctx context.Context) error { return f.releaseShared(ctx, cfg.Language) }
	} else {
		rt, err := f.newRuntime(ctx, engine, cfg, searchPath)
		if err != nil {
			return nil, err
		}
		interp.runtime = rt
		interp.release = rt.Close
		if cfg.ContextScope == options.ScopeThreadsafe {
			interp.evalMu = &sync.Mutex{}
		}
		switch cfg.VariablePersistence {
		case options.PersistPersistent:
			interp.store = newVarStore()
		case options.PersistGlobal:
			interp.store = f.globalStore(cfg.Language)
		}
	}

	if cfg.CompileMode != options.CompileOff {
		interp.cache = script.NewCache(f.logHandler)
		if cfg.WatchScripts {
			if err := interp.cache.Watch(); err != nil {
				logger.WarnContext(ctx, "script watching unavailable", "error", err)
			}
		}
	}

	logger.DebugContext(ctx, "interpreter created",
		"interpreter", interp.id,
		"language", cfg.Language,
		"scope", cfg.ContextScope,
		"persistence", cfg.VariablePersistence,
		"compileMode", cfg.CompileMode,
		"searchPath", searchPath,
	)
	return interp, nil
}

// LibraryDirs expands cfg.ExtraLibraryDirs. Blank entries are skipped, as are entries that do not
// exist or are not directories. With IncludeSubdirs, the immediate child directories of each
// entry follow it in lexical order. A path holding a NUL byte or that cannot be made absolute is
// a configuration error.
func (f *Factory) LibraryDirs(cfg *options.Config) ([]string, error) {
	var dirs []string
	for _, raw := range cfg.ExtraLibraryDirs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if strings.ContainsRune(raw, 0) {
			return nil, fmt.Errorf("%w: library dir %q contains a NUL byte", ErrConfiguration, raw)
		}
		dir, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: library dir %q: %w", ErrConfiguration, raw, err)
		}

		info, err := f.fs.Stat(dir)
		if err != nil || !info.IsDir() {
			f.logger.Debug("skipping library dir", "dir", dir)
			continue
		}
		dirs = append(dirs, dir)
		if !cfg.IncludeSubdirs {
			continue
		}

		children, err := afero.ReadDir(f.fs, dir)
		if err != nil {
			f.logger.Debug("cannot list library dir", "dir", dir, "error", err)
			continue
		}
		for _, child := range children {
			if child.IsDir() {
				dirs = append(dirs, filepath.Join(dir, child.Name()))
			}
		}
	}
	return dirs, nil
}

func (f *Factory) engineFor(language types.Type) (platform.Engine, error) {
	if e, ok := f.engines[language]; ok {
		return e, nil
	}
	return engines.ForType(language)
}

func (f *Factory) newRuntime(
	ctx context.Context,
	engine platform.Engine,
	cfg *options.Config,
	searchPath []string,
) (platform.Runtime, error) {
	rt, err := engine.NewRuntime(ctx, platform.RuntimeConfig{
		Handler:    f.logHandler,
		Fs:         f.fs,
		Concurrent: cfg.ContextScope == options.ScopeConcurrent,
		EntryPoint: cfg.EntryPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := applySettings(rt, cfg, searchPath); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %w", ErrConfiguration, err), rt.Close(ctx))
	}
	return rt, nil
}

func applySettings(rt platform.Runtime, cfg *options.Config, searchPath []string) error {
	if err := rt.SetCompileMode(cfg.CompileMode); err != nil {
		return fmt.Errorf("compile mode: %w", err)
	}
	if err := rt.SetLoadPaths(searchPath); err != nil {
		return fmt.Errorf("load paths: %w", err)
	}
	if cfg.HasHomeDir() {
		if err := rt.SetHomeDirectory(cfg.HomeDir); err != nil {
			return fmt.Errorf("home directory: %w", err)
		}
	}
	return nil
}

// acquireShared returns the shared runtime for cfg.Language, creating it on first use. Settings
// are applied only when the runtime is created.
func (f *Factory) acquireShared(
	ctx context.Context,
	engine platform.Engine,
	cfg *options.Config,
	searchPath []string,
) (*sharedRuntime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.shared[cfg.Language]; ok {
		s.refs++
		return s, nil
	}
	rt, err := f.newRuntime(ctx, engine, cfg, searchPath)
	if err != nil {
		return nil, err
	}
	s := &sharedRuntime{runtime: rt, store: newVarStore(), evalMu: &sync.Mutex{}, refs: 1}
	f.shared[cfg.Language] = s
	return s, nil
}

// releaseShared drops one reference and closes the runtime with the last one.
func (f *Factory) releaseShared(ctx context.Context, language types.Type) error {
	f.mu.Lock()
	s, ok := f.shared[language]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		f.mu.Unlock()
		return nil
	}
	delete(f.shared, language)
	f.mu.Unlock()
	return s.runtime.Close(ctx)
}

func (f *Factory) globalStore(language types.Type) *varStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.globals[language]
	if !ok {
		s = newVarStore()
		f.globals[language] = s
	}
	return s
}
