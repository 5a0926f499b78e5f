package lua

import "errors"

var (
	ErrCompileFailed = errors.New("failed to compile lua script")
	ErrExecFailed    = errors.New("lua execution error")
)
