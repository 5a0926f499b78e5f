package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definition = `
interpreter:
  language: starlark
scripts:
  init: {location: init.star, pathKind: relative}
  service: {location: service.star, pathKind: relative}
  close: {location: close.star, pathKind: relative}
globals:
  suffix: "!"
`

type harness struct {
	fs     afero.Fs
	stdin  string
	input  io.Reader
	ctx    context.Context
	env    map[string]string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T, scripts map[string]string) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), env: map[string]string{}}
	require.NoError(t, afero.WriteFile(h.fs, "/etc/svc/scriptsvc.yaml", []byte(definition), 0o644))
	for name, src := range scripts {
		require.NoError(t, afero.WriteFile(h.fs, "/etc/svc/"+name, []byte(src), 0o644))
	}
	return h
}

func (h *harness) execute(t *testing.T, args ...string) error {
	t.Helper()
	a := &app{
		fs:     h.fs,
		stdin:  strings.NewReader(h.stdin),
		getenv: func(k string) string { return h.env[k] },
	}
	if h.input != nil {
		a.stdin = h.input
	}
	ctx := h.ctx
	if ctx == nil {
		ctx = t.Context()
	}
	root := newRootCommand(a)
	root.SetArgs(append([]string{"--config", "/etc/svc/scriptsvc.yaml"}, args...))
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	return root.ExecuteContext(ctx)
}

var workingScripts = map[string]string{
	"init.star": `log.info("init done")`,
	"service.star": `
if message.payload == "bad":
    fail("rejected " + message.payload)
message.payload = message.payload.upper() + suffix
`,
	"close.star": `log.info("closing")`,
}

func TestRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingScripts)
	h.stdin = "one\nbad\ntwo\n"
	require.NoError(t, h.execute(t, "run"))

	assert.Equal(t, "ONE!\nTWO!\n", h.stdout.String())
	logs := h.stderr.String()
	assert.Contains(t, logs, "init done")
	assert.Contains(t, logs, "message failed")
	assert.Contains(t, logs, "rejected bad")
	assert.Contains(t, logs, "closing")
	assert.Contains(t, logs, "messages=3")
	assert.Contains(t, logs, "failed=1")
}

func TestRun_InterruptClosesInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingScripts)
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	h.input = pr
	h.ctx = ctx

	done := make(chan error, 1)
	go func() { done <- h.execute(t, "run") }()

	// returns once the scanner has consumed the line
	_, err := pw.Write([]byte("one\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	_, err = pw.Write([]byte("two\n"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestRun_InitFailure(t *testing.T) {
	t.Parallel()

	scripts := map[string]string{
		"init.star":    `fail("no database")`,
		"service.star": `x = 1`,
		"close.star":   `log.info("closing")`,
	}
	h := newHarness(t, scripts)
	err := h.execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
	assert.Contains(t, h.stderr.String(), "closing", "close still runs")
}

func TestRun_JSONLogsFromEnv(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingScripts)
	h.env["LOG_FORMAT"] = "json"
	h.env["LOG_LEVEL"] = "warn"
	h.stdin = "bad\n"
	require.NoError(t, h.execute(t, "run"))

	logs := h.stderr.String()
	assert.Contains(t, logs, `"msg":"message failed"`)
	assert.NotContains(t, logs, "init done", "info is below warn")
}

func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("all scripts compile", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		require.NoError(t, h.execute(t, "check"))
		out := h.stdout.String()
		assert.Contains(t, out, "ok   init")
		assert.Contains(t, out, "ok   service")
		assert.Contains(t, out, "ok   close")
		assert.NotContains(t, h.stderr.String(), "init done", "check runs no script")
	})

	t.Run("broken script", func(t *testing.T) {
		t.Parallel()
		scripts := map[string]string{
			"init.star":    `x = 1`,
			"service.star": `def (`,
		}
		h := newHarness(t, scripts)
		err := h.execute(t, "check")
		require.ErrorIs(t, err, errCheckFailed)
		out := h.stdout.String()
		assert.Contains(t, out, "ok   init")
		assert.Contains(t, out, "FAIL service")
		assert.Contains(t, out, "FAIL close", "missing file")
	})
}

func TestRootFlags(t *testing.T) {
	t.Parallel()

	t.Run("bad log format", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		err := h.execute(t, "--log-format", "xml", "check")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		err := h.execute(t, "--log-level", "loud", "check")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("env file", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		err := h.execute(t, "--env-file", "/etc/svc/missing.env", "version")
		require.Error(t, err)
	})

	t.Run("missing definition", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		require.NoError(t, h.fs.Remove("/etc/svc/scriptsvc.yaml"))
		require.Error(t, h.execute(t, "check"))
	})
}

func TestVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.execute(t, "version"))
	assert.Equal(t, "scriptsvc v"+version+"\n", h.stdout.String())
}

func TestEval(t *testing.T) {
	t.Parallel()

	t.Run("inline expression", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		require.NoError(t, h.execute(t, "eval", "-e", "total = 2 + 3\ngreeting = \"hi\" + suffix"))
		assert.Equal(t, "greeting: hi!\ntotal: 5\n", h.stdout.String())
	})

	t.Run("stdin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		h.stdin = "x = 1\n"
		require.NoError(t, h.execute(t, "eval", "-"))
		assert.Equal(t, "x: 1\n", h.stdout.String())
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		require.NoError(t, afero.WriteFile(h.fs, "/tmp/snippet.star", []byte(`items = [1, 2]`), 0o644))
		require.NoError(t, h.execute(t, "eval", "/tmp/snippet.star"))
		assert.Equal(t, "items:\n  - 1\n  - 2\n", h.stdout.String())
	})

	t.Run("no source", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		require.ErrorIs(t, h.execute(t, "eval"), errNoSource)
	})

	t.Run("script error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, workingScripts)
		err := h.execute(t, "eval", "-e", `fail("nope")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})
}
