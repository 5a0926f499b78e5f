package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// Engine is a mock implementation of platform.Engine for testing purposes.
type Engine struct {
	mock.Mock
}

// Type is a mock implementation of the Type method.
func (m *Engine) Type() types.Type {
	args := m.Called()
	return args.Get(0).(types.Type)
}

// NewRuntime is a mock implementation of the NewRuntime method.
func (m *Engine) NewRuntime(ctx context.Context, cfg platform.RuntimeConfig) (platform.Runtime, error) {
	args := m.Called(ctx, cfg)
	rt, _ := args.Get(0).(platform.Runtime)
	return rt, args.Error(1)
}
