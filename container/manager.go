package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateBuilt
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBuilt:
		return "Built"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager owns at most one live interpreter and builds it on demand.
//
// A Manager does no locking. Build and Terminate must be serialized by the caller, which is what
// the service lifecycle does.
type Manager struct {
	factory *Factory
	cfg     *options.Config
	hooks   []ConfigureHook
	metrics *telemetry.Metrics
	logger  *slog.Logger

	current *Interpreter
	state   State
}

// NewManager returns a Manager that builds interpreters for cfg with factory.
func NewManager(factory *Factory, cfg *options.Config, opts ...ManagerOption) (*Manager, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, ErrNilFactory)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	m := &Manager{
		factory: factory,
		cfg:     cfg.Clone(),
		state:   StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	_, m.logger = helpers.SetupLogger(factory.LogHandler(), "container", "Manager")
	return m, nil
}

// Config returns a copy of the interpreter configuration.
func (m *Manager) Config() *options.Config {
	return m.cfg.Clone()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Current returns the live interpreter, or nil.
func (m *Manager) Current() *Interpreter {
	return m.current
}

// Build returns the live interpreter, creating and configuring one when there is none. On failure
// the manager keeps its previous state and any half-built interpreter is terminated.
func (m *Manager) Build(ctx context.Context) (*Interpreter, error) {
	if m.state == StateBuilt && m.current != nil {
		return m.current, nil
	}
	logger := m.logger.WithGroup("Build")

	interp, err := m.factory.Create(ctx, m.cfg)
	if err != nil {
		m.metrics.RecordBuild(err)
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	for idx, hook := range m.hooks {
		if err := hook(ctx, interp); err != nil {
			if termErr := interp.Terminate(ctx); termErr != nil {
				logger.WarnContext(ctx, "failed to discard half-built interpreter",
					"interpreter", interp.ID(), "error", termErr)
			}
			m.metrics.RecordBuild(err)
			return nil, fmt.Errorf("%w: configure hook %d: %w", ErrBuild, idx, err)
		}
	}

	m.current = interp
	m.state = StateBuilt
	m.metrics.RecordBuild(nil)
	logger.InfoContext(ctx, "interpreter built", "interpreter", interp.ID(), "language", m.cfg.Language)
	return interp, nil
}

// Terminate shuts interp down. When interp is the live interpreter the manager forgets it, even if
// shutdown fails, so a stale handle can never clear a newer one. A nil handle is a no-op.
func (m *Manager) Terminate(ctx context.Context, interp *Interpreter) error {
	if interp == nil {
		return nil
	}

	var err error
	if !interp.Terminated() {
		err = interp.Terminate(ctx)
		m.metrics.RecordTerminate(err)
	}

	if interp == m.current {
		m.current = nil
		m.state = StateTerminated
		m.logger.InfoContext(ctx, "interpreter terminated", "interpreter", interp.ID())
	} else {
		m.logger.DebugContext(ctx, "terminated interpreter is not the live one", "interpreter", interp.ID())
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrTerminate, err)
	}
	return nil
}

// Shutdown terminates the live interpreter, if any.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.Terminate(ctx, m.current)
}

