package runner

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/engines/lua"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/constants"
	"github.com/robbyt/go-scriptsvc/platform/data"
	"github.com/robbyt/go-scriptsvc/platform/envelope"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

func newLuaInterpreter(t *testing.T, scripts map[string]string) *container.Interpreter {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, src := range scripts {
		require.NoError(t, afero.WriteFile(fs, path, []byte(src), 0o644))
	}
	f, err := container.NewFactory(container.WithFs(fs), container.WithLogHandler(slog.DiscardHandler))
	require.NoError(t, err)
	cfg, err := options.New(types.Lua)
	require.NoError(t, err)
	interp, err := f.Create(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = interp.Terminate(context.Background()) })
	return interp
}

func loc(path string) *loader.Location {
	l := loader.Absolute(path)
	return &l
}

func TestRunner_NilScript(t *testing.T) {
	t.Parallel()

	r := New(WithLogHandler(slog.DiscardHandler))
	require.NoError(t, r.Run(t.Context(), "init", nil, nil, nil))
	assert.True(t, r.Quiet().Run(t.Context(), "stop", nil, nil, nil))
}

func TestRunner_Bindings(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	interp := newLuaInterpreter(t, map[string]string{
		"/svc.lua": `
message.payload = greeting .. " " .. message.payload .. " from " .. tenant
log.info("handled", {size = #message.payload})
`,
	})

	static := data.NewStaticProvider(map[string]any{"greeting": "hello", "tenant": "static"})
	dynamic := data.NewContextProvider(constants.EvalData)
	provider := data.NewCompositeProvider(static, dynamic)
	ctx, err := provider.AddDataToContext(t.Context(), map[string]any{"tenant": "acme"})
	require.NoError(t, err)

	r := New(WithLogHandler(slog.NewTextHandler(&logs, nil)), WithProvider(provider))
	env := envelope.New([]byte("world"))
	require.NoError(t, r.Run(ctx, "service", interp, loc("/svc.lua"), platform.Bindings{
		platform.BindingMessage: env,
	}))

	assert.Equal(t, "hello world from acme", string(env.Payload()))
	assert.Contains(t, logs.String(), "msg=handled")
	assert.Contains(t, logs.String(), "script.phase=service")
}

func TestRunner_CallSiteWins(t *testing.T) {
	t.Parallel()

	interp := newLuaInterpreter(t, map[string]string{"/a.lua": `if message ~= "call-site" then error("wrong") end`})
	provider := data.NewStaticProvider(map[string]any{platform.BindingMessage: "provider"})

	r := New(WithLogHandler(slog.DiscardHandler), WithProvider(provider))
	require.NoError(t, r.Run(t.Context(), "service", interp, loc("/a.lua"),
		platform.Bindings{platform.BindingMessage: "call-site"}))
}

func TestRunner_ErrorsWrapCause(t *testing.T) {
	t.Parallel()

	interp := newLuaInterpreter(t, map[string]string{
		"/boom.lua":   `error("kaboom")`,
		"/syntax.lua": `x = = 1`,
	})
	r := New(WithLogHandler(slog.DiscardHandler))

	tests := []struct {
		name  string
		loc   *loader.Location
		cause error
	}{
		{"runtime", loc("/boom.lua"), lua.ErrExecFailed},
		{"compile", loc("/syntax.lua"), lua.ErrCompileFailed},
		{"missing", loc("/missing.lua"), loader.ErrScriptNotAvailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := r.Run(t.Context(), "init", interp, tc.loc, nil)
			require.ErrorIs(t, err, ErrExecution)
			require.ErrorIs(t, err, tc.cause)
		})
	}

	err := r.Run(t.Context(), "init", nil, loc("/boom.lua"), nil)
	require.ErrorIs(t, err, ErrExecution)

	err = r.Run(t.Context(), "init", interp, loc("/boom.lua"), nil)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestQuietRunner_LogsAndSwallows(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	interp := newLuaInterpreter(t, map[string]string{"/stop.lua": `error("cannot stop")`})
	r := New(WithLogHandler(slog.NewTextHandler(&logs, nil)))

	ok := r.Quiet().Run(t.Context(), "stop", interp, loc("/stop.lua"), nil)
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "cannot stop")
}

func TestRunner_Telemetry(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := telemetry.NewMetrics("run")

	interp := newLuaInterpreter(t, map[string]string{
		"/ok.lua":  `x = 1`,
		"/bad.lua": `error("no")`,
	})
	r := New(
		WithLogHandler(slog.DiscardHandler),
		WithMetrics(metrics),
		WithTracer(tp.Tracer("test")),
	)

	require.NoError(t, r.Run(t.Context(), "start", interp, loc("/ok.lua"), nil))
	require.Error(t, r.Run(t.Context(), "start", interp, loc("/bad.lua"), nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "script.run", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	count, err := runSeries(metrics)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func runSeries(m *telemetry.Metrics) (int, error) {
	families, err := m.Registry().Gather()
	if err != nil {
		return 0, err
	}
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "script_runs_total") {
			return len(f.GetMetric()), nil
		}
	}
	return 0, nil
}
