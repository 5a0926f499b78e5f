package data

import "errors"

var (
	// ErrStaticProviderNoRuntimeUpdates is returned when adding data to a StaticProvider.
	ErrStaticProviderNoRuntimeUpdates = errors.New("static provider does not accept runtime updates")
	ErrEmptyContextKey                = errors.New("context key is empty")
	ErrEmptyKey                       = errors.New("empty keys are not allowed")
)
