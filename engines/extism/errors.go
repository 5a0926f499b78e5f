package extism

import "errors"

var (
	ErrContentNil         = errors.New("wasm content is empty")
	ErrCompileFailed      = errors.New("failed to compile wasm module")
	ErrExecFailed         = errors.New("extism execution error")
	ErrEntryPointNotFound = errors.New("entry point not exported by module")
)
