// Package runner evaluates a script on an interpreter with the host bindings in place.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/data"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

// Runner runs scripts and reports failures as ErrExecution.
type Runner struct {
	logHandler slog.Handler
	logger     *slog.Logger
	provider   data.Getter
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogHandler sets the handler for the runner and for the log binding handed to scripts.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		r.logHandler = handler
	}
}

// WithProvider supplies the host variables bound beneath the call-site bindings.
func WithProvider(p data.Getter) Option {
	return func(r *Runner) {
		r.provider = p
	}
}

// WithMetrics records every run on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracer sets the tracer for run spans. The global tracer is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{tracer: telemetry.Tracer()}
	for _, opt := range opts {
		opt(r)
	}
	r.logHandler, r.logger = helpers.SetupLogger(r.logHandler, "runner", "Runner")
	return r
}

// Run evaluates script on interp. A nil script is a successful no-op. The log binding is always
// set; bindings add to it, and provider data sits underneath both.
func (r *Runner) Run(
	ctx context.Context,
	phase string,
	interp *container.Interpreter,
	script *loader.Location,
	bindings platform.Bindings,
) (err error) {
	if script == nil {
		return nil
	}
	if interp == nil {
		return fmt.Errorf("%w: no interpreter for %s script", ErrExecution, phase)
	}

	ctx, span := r.tracer.Start(ctx, "script.run", trace.WithAttributes(
		attribute.String("script.phase", phase),
		attribute.String("script.location", script.String()),
		attribute.String("script.language", interp.Language().String()),
		attribute.String("interpreter.id", interp.ID()),
	))
	start := time.Now()
	defer func() {
		r.metrics.RecordRun(phase, interp.Language().String(), time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	scriptLogger := slog.New(r.logHandler.WithGroup("script")).With("phase", phase, "script", script.String())
	callSite := platform.Bindings{platform.BindingLog: scriptLogger}
	for k, v := range bindings {
		callSite[k] = v
	}

	vars, err := data.ResolveBindings(ctx, r.provider, callSite)
	if err != nil {
		return fmt.Errorf("%w: %s script %s: %w", ErrExecution, phase, script, err)
	}

	if _, err := interp.Eval(ctx, *script, vars); err != nil {
		return fmt.Errorf("%w: %s script %s: %w", ErrExecution, phase, script, err)
	}
	r.logger.DebugContext(ctx, "script completed", "phase", phase, "script", script.String(),
		"duration", time.Since(start))
	return nil
}

// Quiet returns a QuietRunner that shares this runner's configuration.
func (r *Runner) Quiet() *QuietRunner {
	return &QuietRunner{runner: r}
}

// QuietRunner runs teardown scripts: failures are logged at error level and never returned.
type QuietRunner struct {
	runner *Runner
}

// Run evaluates script like Runner.Run and reports whether it succeeded.
func (q *QuietRunner) Run(
	ctx context.Context,
	phase string,
	interp *container.Interpreter,
	script *loader.Location,
	bindings platform.Bindings,
) bool {
	if err := q.runner.Run(ctx, phase, interp, script, bindings); err != nil {
		q.runner.logger.ErrorContext(ctx, "script failed", "phase", phase, "error", err)
		return false
	}
	return true
}
