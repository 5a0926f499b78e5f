// Description: This file contains constants used for accessing values from context objects.
package constants

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// EvalData holds request-scoped bindings added with data.ContextProvider
	EvalData ContextKey = "eval_data"
)
