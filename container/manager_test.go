package container

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-scriptsvc/engines/mocks"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(newTestFactory(t, nil), newConfig(t, types.Starlark), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, options.DefaultConfig(types.Lua))
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, err, ErrNilFactory)

	_, err = NewManager(newTestFactory(t, nil), &options.Config{})
	require.ErrorIs(t, err, ErrConfiguration)

	m := newTestManager(t)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Nil(t, m.Current())
}

func TestManager_BuildIsIdempotent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	first, err := m.Build(t.Context())
	require.NoError(t, err)
	second, err := m.Build(t.Context())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, StateBuilt, m.State())
}

func TestManager_TerminateCurrentThenRebuild(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	first, err := m.Build(t.Context())
	require.NoError(t, err)

	require.NoError(t, m.Terminate(t.Context(), first))
	assert.Equal(t, StateTerminated, m.State())
	assert.Nil(t, m.Current())
	assert.True(t, first.Terminated())

	second, err := m.Build(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, StateBuilt, m.State())
}

func TestManager_TerminateForeignHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	current, err := m.Build(t.Context())
	require.NoError(t, err)

	other := newInterpreter(t, m.factory, m.Config())
	require.NoError(t, m.Terminate(t.Context(), other))
	assert.True(t, other.Terminated())

	again, err := m.Build(t.Context())
	require.NoError(t, err)
	assert.Same(t, current, again)
	assert.False(t, current.Terminated())
}

func TestManager_TerminateStaleHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	stale, err := m.Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, m.Terminate(t.Context(), stale))

	live, err := m.Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, m.Terminate(t.Context(), stale))

	assert.Same(t, live, m.Current())
	assert.Equal(t, StateBuilt, m.State())
}

func TestManager_TerminateNil(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, m.Terminate(t.Context(), nil))
	assert.Equal(t, StateUninitialized, m.State())

	current, err := m.Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, m.Terminate(t.Context(), nil))
	assert.Same(t, current, m.Current())
}

func TestManager_TerminateFailureStillClears(t *testing.T) {
	t.Parallel()

	rt := &mocks.Runtime{}
	rt.On("SetCompileMode", mock.Anything).Return(nil)
	rt.On("SetLoadPaths", mock.Anything).Return(nil)
	rt.On("Close", mock.Anything).Return(errors.New("runtime stuck"))

	metrics := telemetry.NewMetrics("mgr")
	f := newTestFactory(t, nil, WithEngine(mockEngine(rt)))
	m, err := NewManager(f, newConfig(t, types.Lua), WithManagerMetrics(metrics))
	require.NoError(t, err)

	interp, err := m.Build(t.Context())
	require.NoError(t, err)

	err = m.Terminate(t.Context(), interp)
	require.ErrorIs(t, err, ErrTerminate)
	assert.Contains(t, err.Error(), "runtime stuck")
	assert.Nil(t, m.Current())
	assert.Equal(t, StateTerminated, m.State())

	require.NoError(t, m.Terminate(t.Context(), interp), "already terminated handles are not shut down twice")
	rt.AssertNumberOfCalls(t, "Close", 1)

	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(`
# HELP mgr_interpreters_live Interpreters built and not yet terminated
# TYPE mgr_interpreters_live gauge
mgr_interpreters_live 0
`), "mgr_interpreters_live"))
}

func TestManager_ConfigureHooks(t *testing.T) {
	t.Parallel()

	var calls []string
	hook := func(name string) ConfigureHook {
		return func(_ context.Context, interp *Interpreter) error {
			require.NotNil(t, interp)
			calls = append(calls, name)
			return nil
		}
	}

	m := newTestManager(t, WithConfigureHook(hook("first")), WithConfigureHook(hook("second")), WithConfigureHook(nil))
	_, err := m.Build(t.Context())
	require.NoError(t, err)
	_, err = m.Build(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, calls, "hooks run once, in order")
}

func TestManager_BuildFailureKeepsPriorState(t *testing.T) {
	t.Parallel()

	var built *Interpreter
	failing := func(_ context.Context, interp *Interpreter) error {
		built = interp
		return errors.New("hook exploded")
	}

	m := newTestManager(t, WithConfigureHook(failing))
	_, err := m.Build(t.Context())
	require.ErrorIs(t, err, ErrBuild)
	assert.Contains(t, err.Error(), "hook exploded")
	assert.Equal(t, StateUninitialized, m.State())
	assert.Nil(t, m.Current())
	require.NotNil(t, built)
	assert.True(t, built.Terminated(), "the half-built interpreter is discarded")
}

func TestManager_BuildFactoryFailure(t *testing.T) {
	t.Parallel()

	e := &mocks.Engine{}
	e.On("Type").Return(types.Lua)
	e.On("NewRuntime", mock.Anything, mock.Anything).Return(nil, errors.New("no runtime"))

	f := newTestFactory(t, nil, WithEngine(e))
	m, err := NewManager(f, newConfig(t, types.Lua))
	require.NoError(t, err)

	_, err = m.Build(t.Context())
	require.ErrorIs(t, err, ErrBuild)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Uninitialized", StateUninitialized.String())
	assert.Equal(t, "Built", StateBuilt.String())
	assert.Equal(t, "Terminated", StateTerminated.String())
	assert.Equal(t, "State(9)", State(9).String())
}
