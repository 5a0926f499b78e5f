package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/engines/starlark"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/envelope"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/runner"
)

type fixture struct {
	fs      afero.Fs
	logs    *bytes.Buffer
	manager *container.Manager
}

func newFixture(t *testing.T, scripts map[string]string, opts ...options.Option) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, src := range scripts {
		require.NoError(t, afero.WriteFile(fs, path, []byte(src), 0o644))
	}
	logs := &bytes.Buffer{}
	handler := slog.NewTextHandler(logs, nil)

	f, err := container.NewFactory(container.WithFs(fs), container.WithLogHandler(handler))
	require.NoError(t, err)
	cfg, err := options.New(types.Starlark, opts...)
	require.NoError(t, err)
	m, err := container.NewManager(f, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return &fixture{fs: fs, logs: logs, manager: m}
}

func (fx *fixture) service(t *testing.T, scripts ScriptSet) *Service {
	t.Helper()
	svc, err := New(fx.manager, scripts, WithLogHandler(slog.NewTextHandler(fx.logs, nil)))
	require.NoError(t, err)
	return svc
}

func TestScriptSet(t *testing.T) {
	t.Parallel()

	set := ScriptSet{
		PhaseService: loader.Absolute("/svc.star"),
		PhaseStop:    loader.Absolute("  "),
	}
	require.NotNil(t, set.Get(PhaseService))
	assert.Equal(t, "/svc.star", set.Get(PhaseService).Path)
	assert.Nil(t, set.Get(PhaseInit), "absent")
	assert.Nil(t, set.Get(PhaseStop), "blank counts as absent")
	assert.Equal(t, []Phase{PhaseService}, set.Configured())

	var nilSet ScriptSet
	assert.Nil(t, nilSet.Get(PhaseClose))
}

func TestPhase_UnmarshalText(t *testing.T) {
	t.Parallel()

	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("start")))
	assert.Equal(t, PhaseStart, p)
	require.Error(t, p.UnmarshalText([]byte("restart")))
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.ErrorIs(t, err, ErrNilManager)

	fx := newFixture(t, nil)
	_, err = New(fx.manager, ScriptSet{"reload": loader.Absolute("/x.star")})
	require.ErrorIs(t, err, ErrUnknownPhase)
}

func TestNew_ScriptsAreCopied(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/svc.star":       `message.payload = "svc"`,
		"/elsewhere.star": `message.payload = "elsewhere"`,
	})
	set := ScriptSet{PhaseService: loader.Absolute("/svc.star")}
	svc := fx.service(t, set)

	set[PhaseService] = loader.Absolute("/elsewhere.star")
	set["bogus"] = loader.Absolute("/x.star")
	assert.Equal(t, "/svc.star", svc.Scripts().Get(PhaseService).Path)
	assert.NotContains(t, svc.Scripts(), Phase("bogus"))

	got := svc.Scripts()
	got[PhaseService] = loader.Absolute("/elsewhere.star")
	assert.Equal(t, "/svc.star", svc.Scripts().Get(PhaseService).Path)

	require.NoError(t, svc.Init(t.Context()))
	require.NoError(t, svc.Start(t.Context()))
	env := envelope.New(nil)
	require.NoError(t, svc.Process(t.Context(), env))
	assert.Equal(t, "svc", string(env.Payload()))
}

func TestService_FullLifecycleWithOnlyServiceScript(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/svc.star": `message.payload = "processed:" + message.payload`,
	})
	svc := fx.service(t, ScriptSet{PhaseService: loader.Absolute("/svc.star")})

	require.NoError(t, svc.Init(t.Context()))
	require.NoError(t, svc.Start(t.Context()))

	env := envelope.New([]byte("one"))
	require.NoError(t, svc.Process(t.Context(), env))
	assert.Equal(t, "processed:one", string(env.Payload()))

	svc.Stop(t.Context())
	svc.Close(t.Context())
	assert.Nil(t, fx.manager.Current())
	assert.Equal(t, container.StateTerminated, fx.manager.State())
}

func TestService_AllPhases(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/init.star":  `log.info("init ran")`,
		"/start.star": `log.info("start ran")`,
		"/svc.star":   `message.set_metadata("seen", "yes")`,
		"/stop.star":  `log.info("stop ran")`,
		"/close.star": `log.info("close ran")`,
	})
	svc := fx.service(t, ScriptSet{
		PhaseInit:    loader.Absolute("/init.star"),
		PhaseStart:   loader.Absolute("/start.star"),
		PhaseService: loader.Absolute("/svc.star"),
		PhaseStop:    loader.Absolute("/stop.star"),
		PhaseClose:   loader.Absolute("/close.star"),
	})

	require.NoError(t, svc.Init(t.Context()))
	require.NoError(t, svc.Start(t.Context()))
	env := envelope.New(nil)
	require.NoError(t, svc.Process(t.Context(), env))
	svc.Stop(t.Context())
	svc.Close(t.Context())

	assert.Equal(t, "yes", env.GetMetadata("seen"))
	for _, want := range []string{"init ran", "start ran", "stop ran", "close ran"} {
		assert.Contains(t, fx.logs.String(), want)
	}
}

func TestService_TeardownFailuresAreLogged(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/stop.star":  `fail("stop broke")`,
		"/close.star": `fail("close broke")`,
	})
	svc := fx.service(t, ScriptSet{
		PhaseStop:  loader.Absolute("/stop.star"),
		PhaseClose: loader.Absolute("/close.star"),
	})
	require.NoError(t, svc.Init(t.Context()))

	svc.Stop(t.Context())
	svc.Close(t.Context())

	logs := fx.logs.String()
	assert.Contains(t, logs, "level=ERROR")
	assert.Contains(t, logs, "stop broke")
	assert.Contains(t, logs, "close broke")
	assert.Nil(t, fx.manager.Current(), "the interpreter is terminated regardless")
}

func TestService_InitFailureSurfacesCause(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{"/init.star": `fail("bad init")`})
	svc := fx.service(t, ScriptSet{PhaseInit: loader.Absolute("/init.star")})

	err := svc.Init(t.Context())
	require.ErrorIs(t, err, runner.ErrExecution)
	require.ErrorIs(t, err, starlark.ErrExecFailed)
	assert.Contains(t, err.Error(), "bad init")
}

func TestService_StartFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{"/start.star": `def (`})
	svc := fx.service(t, ScriptSet{PhaseStart: loader.Absolute("/start.star")})

	require.NoError(t, svc.Init(t.Context()))
	err := svc.Start(t.Context())
	require.ErrorIs(t, err, runner.ErrExecution)
	require.ErrorIs(t, err, starlark.ErrCompileFailed)
}

func TestService_ProcessFailureIsPerMessage(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/svc.star": `
if message.payload == "poison":
    fail("cannot handle poison")
message.payload = "ok"
`,
	})
	svc := fx.service(t, ScriptSet{PhaseService: loader.Absolute("/svc.star")})
	require.NoError(t, svc.Init(t.Context()))

	err := svc.Process(t.Context(), envelope.New([]byte("poison")))
	require.ErrorIs(t, err, runner.ErrExecution)
	assert.Contains(t, err.Error(), "cannot handle poison")

	good := envelope.New([]byte("fine"))
	require.NoError(t, svc.Process(t.Context(), good))
	assert.Equal(t, "ok", string(good.Payload()))
}

func TestService_ProcessBeforeInit(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	svc := fx.service(t, ScriptSet{PhaseService: loader.Absolute("/svc.star")})

	err := svc.Process(t.Context(), envelope.New(nil))
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, err, runner.ErrExecution)

	svc.Stop(t.Context())
	svc.Close(t.Context())
}

func TestService_ForcedModePrecompiles(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/svc.star":  `x = 1`,
		"/stop.star": `y = 2`,
	}, options.WithCompileMode(options.CompileForced))
	svc := fx.service(t, ScriptSet{
		PhaseService: loader.Absolute("/svc.star"),
		PhaseStop:    loader.Absolute("/stop.star"),
	})

	require.NoError(t, svc.Init(t.Context()))
	assert.Equal(t, 2, fx.manager.Current().CachedPrograms())
}

func TestService_ForcedModeReportsBrokenScriptAtInit(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{"/svc.star": `def (`},
		options.WithCompileMode(options.CompileForced))
	svc := fx.service(t, ScriptSet{PhaseService: loader.Absolute("/svc.star")})

	err := svc.Init(t.Context())
	require.ErrorIs(t, err, runner.ErrExecution)
	require.ErrorIs(t, err, starlark.ErrCompileFailed)
}

func TestService_Handle(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"/svc.star": `
message.set_metadata("handled", "true")
message.payload = message.payload.upper()
`,
	})
	svc := fx.service(t, ScriptSet{PhaseService: loader.Absolute("/svc.star")})
	require.NoError(t, svc.Init(t.Context()))

	var handler message.HandlerFunc = svc.Handle
	msg := message.NewMessage("id-1", []byte("abc"))
	out, err := handler(msg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ABC", string(out[0].Payload))
	assert.Equal(t, "true", out[0].Metadata.Get("handled"))
}
