// Package data supplies the host-defined variables that are bound into every script run, in
// addition to the message and log bindings.
package data

import (
	"context"
)

// Getter defines the interface for retrieving data from a context.
type Getter interface {
	GetData(ctx context.Context) (map[string]any, error)
}

// Setter enriches a context with request-scoped data, so a caller can attach values (a tenant,
// a trace tag) before handing the context to the service.
type Setter interface {
	AddDataToContext(ctx context.Context, data ...map[string]any) (context.Context, error)
}

// Provider defines the interface for accessing runtime data for script execution.
type Provider interface {
	Getter
	Setter
}
