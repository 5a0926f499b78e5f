// Package scriptsvc builds a scripting service in one call: an interpreter factory, a lifecycle
// manager and the service that runs the lifecycle scripts on it.
package scriptsvc

import (
	"fmt"
	"log/slog"

	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/constants"
	"github.com/robbyt/go-scriptsvc/platform/data"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
	"github.com/robbyt/go-scriptsvc/runner"
	"github.com/robbyt/go-scriptsvc/service"
)

// Option configures NewService.
type Option func(*settings) error

type settings struct {
	logHandler     slog.Handler
	interpreter    []options.Option
	factory        []container.FactoryOption
	manager        []container.ManagerOption
	globals        map[string]any
	metrics        *telemetry.Metrics
	runnerOverride *runner.Runner
}

// WithLogHandler sets the handler shared by every component.
func WithLogHandler(handler slog.Handler) Option {
	return func(s *settings) error {
		s.logHandler = handler
		return nil
	}
}

// WithInterpreterOptions adjusts the interpreter configuration over the language defaults.
func WithInterpreterOptions(opts ...options.Option) Option {
	return func(s *settings) error {
		s.interpreter = append(s.interpreter, opts...)
		return nil
	}
}

// WithFactoryOptions passes options to the interpreter factory.
func WithFactoryOptions(opts ...container.FactoryOption) Option {
	return func(s *settings) error {
		s.factory = append(s.factory, opts...)
		return nil
	}
}

// WithManagerOptions passes options to the lifecycle manager, such as configure hooks.
func WithManagerOptions(opts ...container.ManagerOption) Option {
	return func(s *settings) error {
		s.manager = append(s.manager, opts...)
		return nil
	}
}

// WithGlobals binds static values into every script. Values added to a request context with
// data.ContextProvider under constants.EvalData are bound as well, and win on conflict.
func WithGlobals(globals map[string]any) Option {
	return func(s *settings) error {
		s.globals = globals
		return nil
	}
}

// WithMetrics records builds, compilations and runs on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *settings) error {
		s.metrics = m
		return nil
	}
}

// WithRunner replaces the runner NewService would build. WithGlobals is ignored when set.
func WithRunner(r *runner.Runner) Option {
	return func(s *settings) error {
		if r == nil {
			return fmt.Errorf("%w: runner is nil", container.ErrConfiguration)
		}
		s.runnerOverride = r
		return nil
	}
}

// NewService builds a factory, a manager and a service for language. Nothing is built or run
// until the service's Init is called.
func NewService(language types.Type, scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	s := &settings{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	cfg, err := options.New(language, append(s.interpreter, options.WithDefaults())...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrConfiguration, err)
	}

	factoryOpts := []container.FactoryOption{container.WithMetrics(s.metrics)}
	if s.logHandler != nil {
		factoryOpts = append(factoryOpts, container.WithLogHandler(s.logHandler))
	}
	factory, err := container.NewFactory(append(factoryOpts, s.factory...)...)
	if err != nil {
		return nil, err
	}

	managerOpts := append([]container.ManagerOption{container.WithManagerMetrics(s.metrics)}, s.manager...)
	manager, err := container.NewManager(factory, cfg, managerOpts...)
	if err != nil {
		return nil, err
	}

	r := s.runnerOverride
	if r == nil {
		provider := data.NewCompositeProvider(
			data.NewStaticProvider(s.globals),
			data.NewContextProvider(constants.EvalData),
		)
		r = runner.New(
			runner.WithLogHandler(factory.LogHandler()),
			runner.WithProvider(provider),
			runner.WithMetrics(s.metrics),
		)
	}

	return service.New(manager, scripts,
		service.WithRunner(r),
		service.WithLogHandler(factory.LogHandler()),
	)
}

// NewStarlarkService builds a service running Starlark scripts.
func NewStarlarkService(scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	return NewService(types.Starlark, scripts, opts...)
}

// NewLuaService builds a service running Lua scripts.
func NewLuaService(scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	return NewService(types.Lua, scripts, opts...)
}

// NewTengoService builds a service running Tengo scripts.
func NewTengoService(scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	return NewService(types.Tengo, scripts, opts...)
}

// NewRisorService builds a service running Risor scripts.
func NewRisorService(scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	return NewService(types.Risor, scripts, opts...)
}

// NewExtismService builds a service calling WASM plugins. Each script location names a module.
func NewExtismService(scripts service.ScriptSet, opts ...Option) (*service.Service, error) {
	return NewService(types.Extism, scripts, opts...)
}
