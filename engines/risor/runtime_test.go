package risor

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewEngine().NewRuntime(t.Context(), platform.RuntimeConfig{Handler: slog.DiscardHandler})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close(context.Background())) })
	return rt.(*Runtime)
}

func run(t *testing.T, rt *Runtime, src string, vars platform.Bindings) (platform.Bindings, error) {
	t.Helper()
	prog, err := rt.Compile(t.Context(), "test.risor", []byte(src))
	require.NoError(t, err)
	return rt.Exec(t.Context(), prog, vars, platform.ExecOptions{})
}

func TestEngine_Type(t *testing.T) {
	t.Parallel()
	assert.Equal(t, types.Risor, NewEngine().Type())
}

func TestRuntime_Compile(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)

	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{name: "expression", src: "true"},
		{name: "function", src: "func add(a, b) {\n\treturn a + b\n}\nadd(1, 2)"},
		{name: "unterminated string", src: `print("Hello, World!`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prog, err := rt.Compile(t.Context(), "x.risor", []byte(tt.src))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrCompileFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x.risor", prog.Name())
		})
	}
}

func TestRuntime_ExecResults(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)

	tests := []struct {
		name string
		src  string
		vars platform.Bindings
		want platform.Bindings
	}{
		{
			name: "map result becomes variables",
			src:  "out := {\"greeting\": greeting + \"!\", \"n\": 2}\nout",
			vars: platform.Bindings{"greeting": "hi"},
			want: platform.Bindings{"greeting": "hi!", "n": int64(2)},
		},
		{
			name: "scalar result",
			src:  "x := 40\nx + 2",
			want: platform.Bindings{ResultKey: int64(42)},
		},
		{
			name: "nil result",
			src:  "nil",
			want: platform.Bindings{},
		},
		{
			name: "function result is ignored",
			src:  "func f() {\n\treturn 1\n}\nf",
			want: platform.Bindings{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := run(t, rt, tt.src, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntime_ExecMessage(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	env := envelope.New([]byte("hello"))
	env.SetMetadata("lang", "en")

	src := `
message.set_payload(message.payload() + " " + message.get_metadata("lang"))
message.set_metadata("seen", "yes")
message.delete_metadata("lang")
out := {"missing": message.get_metadata("nope", "fallback"), "id": message.id()}
out
`
	got, err := run(t, rt, src, platform.Bindings{platform.BindingMessage: env})
	require.NoError(t, err)

	assert.Equal(t, "hello en", string(env.Payload()))
	assert.Equal(t, "yes", env.GetMetadata("seen"))
	assert.Empty(t, env.GetMetadata("lang"))
	assert.Equal(t, "fallback", got["missing"])
	assert.Equal(t, env.ID(), got["id"])
}

func TestRuntime_ExecLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rt := newTestRuntime(t)
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := run(t, rt, `log.warn("disk low", {"free": 12})`, platform.Bindings{platform.BindingLog: logger})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="disk low"`)
	assert.Contains(t, buf.String(), "free=12")
}

func TestRuntime_ExecFailures(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)

	_, err := run(t, rt, `1 + "a"`, nil)
	require.ErrorIs(t, err, ErrExecFailed)

	_, err = run(t, rt, `error("boom")`, nil)
	require.ErrorIs(t, err, ErrExecFailed)
}

func TestRuntime_CompilesPerBindingSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode options.CompileMode
		want int
	}{
		{name: "cached", mode: options.CompileJIT, want: 2},
		{name: "off", mode: options.CompileOff, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rt := newTestRuntime(t)
			require.NoError(t, rt.SetCompileMode(tt.mode))

			prog, err := rt.Compile(t.Context(), "p.risor", []byte("1"))
			require.NoError(t, err)
			for _, vars := range []platform.Bindings{
				{"a": 1},
				{"a": 2},
				{"a": 1, "b": 2},
			} {
				_, err := rt.Exec(t.Context(), prog, vars, platform.ExecOptions{})
				require.NoError(t, err)
			}
			assert.Len(t, prog.(*program).compiled, tt.want)
		})
	}
}

func TestRuntime_ForeignProgramAndClose(t *testing.T) {
	t.Parallel()

	a := newTestRuntime(t)
	b := newTestRuntime(t)

	prog, err := a.Compile(t.Context(), "a.risor", []byte("1"))
	require.NoError(t, err)
	_, err = b.Exec(t.Context(), prog, nil, platform.ExecOptions{})
	require.ErrorIs(t, err, platform.ErrForeignProgram)

	require.NoError(t, a.Close(t.Context()))
	_, err = a.Exec(t.Context(), prog, nil, platform.ExecOptions{})
	require.ErrorIs(t, err, platform.ErrRuntimeClosed)
	_, err = a.Compile(t.Context(), "a.risor", []byte("1"))
	require.ErrorIs(t, err, platform.ErrRuntimeClosed)
}

func TestRuntime_Settings(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	require.NoError(t, rt.SetLoadPaths([]string{"/a"}))
	require.NoError(t, rt.SetHomeDirectory("/home/risor"))
	assert.Equal(t, "/home/risor", rt.HomeDirectory())
	assert.Equal(t, []string{"/a", "/home/risor", "/home/risor/lib"}, rt.SearchPath())
}
