package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/robbyt/go-scriptsvc/internal/pipeline"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

const shutdownTimeout = 5 * time.Second

type runFlags struct {
	metricsAddr string
	trace       bool
}

func newRunCommand(a *app) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the service, feeding each stdin line to the service script",
		Long: `run builds the interpreter, runs the init and start scripts, then publishes every
line read from stdin as a message. Processed payloads are written to stdout, one per line.
Messages whose script fails are logged and routed to the poison topic. On end of input or
on SIGINT/SIGTERM the stop and close scripts run and the interpreter is terminated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address (overrides metrics.listen)")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "write OpenTelemetry spans to stderr")
	return cmd
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, flags *runFlags) error {
	def, err := a.loadDefinition()
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics(def.Metrics.Namespace)
	if addr := firstNonBlank(flags.metricsAddr, def.Metrics.Listen); addr != "" {
		stopMetrics := a.serveMetrics(addr, metrics)
		defer stopMetrics()
	}

	tracer := telemetry.NoopTracer()
	if flags.trace {
		var shutdown func(context.Context) error
		tracer, shutdown, err = telemetry.SetupStdoutTracing(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.logger.Error("failed to flush traces", "error", err)
			}
		}()
	}

	svc, err := a.newService(def, metrics, tracer)
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	if err := svc.Init(ctx); err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop(context.WithoutCancel(ctx))

	return a.pump(ctx, cmd, svc.Handle, tracer)
}

// pump publishes stdin lines and waits until every message has reached the output or poison
// topic, or ctx is cancelled.
func (a *app) pump(
	ctx context.Context,
	cmd *cobra.Command,
	handler message.HandlerFunc,
	tracer trace.Tracer,
) error {
	p, err := pipeline.New(handler,
		pipeline.WithLogHandler(a.logHandler),
		pipeline.WithTracer(tracer),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Error("failed to close pipeline", "error", err)
		}
	}()

	routerErr := make(chan error, 1)
	go func() { routerErr <- p.Run(ctx) }()
	select {
	case <-p.Running():
	case err := <-routerErr:
		return err
	case <-ctx.Done():
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	output, err := p.Subscribe(subCtx, p.Topics().Output)
	if err != nil {
		return err
	}
	poisoned, err := p.Subscribe(subCtx, p.Topics().Poison)
	if err != nil {
		return err
	}

	// A read from a terminal or pipe does not return on cancellation; closing the input unblocks
	// the scanner so the reader goroutine exits with the command.
	if closer, ok := a.stdin.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stopClose()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-subCtx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	out := cmd.OutOrStdout()
	published, settled, failed := 0, 0, 0
	inputDone := false
	for !inputDone || settled < published {
		select {
		case line, ok := <-lines:
			if !ok {
				inputDone = true
				lines = nil
				continue
			}
			if _, err := p.Publish([]byte(line), nil); err != nil {
				return err
			}
			published++
		case msg := <-output:
			fmt.Fprintln(out, string(msg.Payload))
			msg.Ack()
			settled++
		case msg := <-poisoned:
			a.logger.Error("message failed",
				"id", msg.UUID,
				"reason", msg.Metadata.Get(pipeline.PoisonReasonKey),
			)
			msg.Ack()
			settled++
			failed++
		case err := <-routerErr:
			return err
		case <-ctx.Done():
			a.logger.Info("interrupted", "published", published, "settled", settled)
			return nil
		}
	}

	if err := <-readErr; err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	a.logger.Info("input processed", "messages", published, "failed", failed)
	return nil
}

func (a *app) serveMetrics(addr string, metrics *telemetry.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("failed to stop metrics server", "error", err)
		}
	}
}
