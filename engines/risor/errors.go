package risor

import "errors"

var (
	ErrCompileFailed = errors.New("failed to compile risor script")
	ErrExecFailed    = errors.New("risor execution error")
	ErrScriptError   = errors.New("error returned from script")
)
