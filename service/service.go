// Package service runs lifecycle and per-message scripts on one managed interpreter.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/envelope"
	"github.com/robbyt/go-scriptsvc/runner"
)

// Service drives the interpreter of a Manager through Init, Start, Process, Stop and Close. The
// host calls the lifecycle methods one at a time; Process may run concurrently once started,
// subject to the interpreter's context scope.
type Service struct {
	manager *container.Manager
	scripts ScriptSet
	runner  *runner.Runner
	quiet   *runner.QuietRunner
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRunner sets the runner used for every phase. Teardown phases use its quiet variant.
func WithRunner(r *runner.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithLogHandler sets the service log handler. It is also used for the default runner.
func WithLogHandler(handler slog.Handler) Option {
	return func(s *Service) {
		_, s.logger = helpers.SetupLogger(handler, "service", "Service")
	}
}

// New creates a Service. Scripts with an unknown phase are rejected.
func New(manager *container.Manager, scripts ScriptSet, opts ...Option) (*Service, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	for phase := range scripts {
		if !phase.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
		}
	}

	s := &Service{manager: manager, scripts: maps.Clone(scripts)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		_, s.logger = helpers.SetupLogger(nil, "service", "Service")
	}
	if s.runner == nil {
		s.runner = runner.New(runner.WithLogHandler(s.logger.Handler()))
	}
	s.quiet = s.runner.Quiet()
	return s, nil
}

// Manager returns the manager that owns the interpreter.
func (s *Service) Manager() *container.Manager {
	return s.manager
}

// Scripts returns a copy of the configured scripts.
func (s *Service) Scripts() ScriptSet {
	return maps.Clone(s.scripts)
}

// Init builds the interpreter, precompiles every script in forced compile mode and runs the init
// script. Any failure is returned.
func (s *Service) Init(ctx context.Context) error {
	interp, err := s.manager.Build(ctx)
	if err != nil {
		return err
	}

	if s.manager.Config().CompileMode == options.CompileForced {
		for _, phase := range s.scripts.Configured() {
			if err := interp.Precompile(ctx, *s.scripts.Get(phase)); err != nil {
				return fmt.Errorf("%w: precompile %s script: %w", runner.ErrExecution, phase, err)
			}
		}
	}

	return s.runner.Run(ctx, PhaseInit.String(), interp, s.scripts.Get(PhaseInit), nil)
}

// Start runs the start script. Any failure is returned.
func (s *Service) Start(ctx context.Context) error {
	interp, err := s.manager.Build(ctx)
	if err != nil {
		return err
	}
	return s.runner.Run(ctx, PhaseStart.String(), interp, s.scripts.Get(PhaseStart), nil)
}

// Process runs the service script with env bound as the message. An error fails this message
// only.
func (s *Service) Process(ctx context.Context, env envelope.Envelope) error {
	interp := s.manager.Current()
	if interp == nil {
		return fmt.Errorf("%w: %w", runner.ErrExecution, ErrNotInitialized)
	}
	return s.runner.Run(ctx, PhaseService.String(), interp, s.scripts.Get(PhaseService),
		platform.Bindings{platform.BindingMessage: env})
}

// Handle processes msg as a watermill handler and forwards it when the script succeeds.
func (s *Service) Handle(msg *message.Message) ([]*message.Message, error) {
	if err := s.Process(msg.Context(), envelope.Wrap(msg)); err != nil {
		return nil, err
	}
	return []*message.Message{msg}, nil
}

// Stop runs the stop script. Failures are logged, never returned.
func (s *Service) Stop(ctx context.Context) {
	interp := s.manager.Current()
	if interp == nil {
		s.logger.DebugContext(ctx, "no interpreter, skipping stop script")
		return
	}
	s.quiet.Run(ctx, PhaseStop.String(), interp, s.scripts.Get(PhaseStop), nil)
}

// Close runs the close script and terminates the interpreter. Failures of either are logged,
// never returned.
func (s *Service) Close(ctx context.Context) {
	interp := s.manager.Current()
	if interp == nil {
		return
	}
	s.quiet.Run(ctx, PhaseClose.String(), interp, s.scripts.Get(PhaseClose), nil)
	if err := s.manager.Terminate(ctx, interp); err != nil {
		s.logger.ErrorContext(ctx, "failed to terminate interpreter", "interpreter", interp.ID(), "error", err)
	}
}
