package container

import "errors"

var (
	// ErrConfiguration is returned when an interpreter cannot be created from its configuration.
	ErrConfiguration = errors.New("invalid interpreter configuration")

	// ErrBuild wraps any failure while a Manager constructs or configures its interpreter.
	ErrBuild = errors.New("failed to build interpreter")

	// ErrTerminate wraps a failure while shutting an interpreter down.
	ErrTerminate = errors.New("failed to terminate interpreter")

	ErrInterpreterTerminated = errors.New("interpreter is terminated")
	ErrNilFactory            = errors.New("factory is nil")
)
