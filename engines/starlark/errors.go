package starlark

import "errors"

var (
	ErrCompileFailed = errors.New("failed to compile starlark script")
	ErrExecFailed    = errors.New("starlark execution error")
	ErrLoadCycle     = errors.New("cycle in starlark load graph")
)
