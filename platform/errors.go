package platform

import "errors"

var (
	// ErrRuntimeClosed is returned by a Runtime used after Close.
	ErrRuntimeClosed = errors.New("runtime is closed")
	// ErrForeignProgram is returned when a Program is passed to a runtime that did not compile it.
	ErrForeignProgram = errors.New("program was compiled by a different runtime")
	// ErrModuleNotFound is returned when a script loads a module missing from the search path.
	ErrModuleNotFound = errors.New("module not found on search path")
)
