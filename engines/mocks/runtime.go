package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Runtime is a mock implementation of platform.Runtime for testing purposes.
type Runtime struct {
	mock.Mock
}

// SetCompileMode is a mock implementation of the SetCompileMode method.
func (m *Runtime) SetCompileMode(mode options.CompileMode) error {
	return m.Called(mode).Error(0)
}

// SetLoadPaths is a mock implementation of the SetLoadPaths method.
func (m *Runtime) SetLoadPaths(paths []string) error {
	return m.Called(paths).Error(0)
}

// SetHomeDirectory is a mock implementation of the SetHomeDirectory method.
func (m *Runtime) SetHomeDirectory(dir string) error {
	return m.Called(dir).Error(0)
}

// Compile is a mock implementation of the Compile method.
func (m *Runtime) Compile(ctx context.Context, name string, source []byte) (platform.Program, error) {
	args := m.Called(ctx, name, source)
	prog, _ := args.Get(0).(platform.Program)
	return prog, args.Error(1)
}

// Exec is a mock implementation of the Exec method.
func (m *Runtime) Exec(
	ctx context.Context,
	prog platform.Program,
	vars platform.Bindings,
	opts platform.ExecOptions,
) (platform.Bindings, error) {
	args := m.Called(ctx, prog, vars, opts)
	out, _ := args.Get(0).(platform.Bindings)
	return out, args.Error(1)
}

// Close is a mock implementation of the Close method.
func (m *Runtime) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Program is a platform.Program with a fixed name.
type Program struct {
	ProgramName string
}

func (p *Program) Name() string { return p.ProgramName }
