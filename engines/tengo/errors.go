package tengo

import "errors"

var (
	ErrCompileFailed = errors.New("failed to compile tengo script")
	ErrExecFailed    = errors.New("tengo execution error")
)
