package data

import (
	"context"
	"fmt"
	"maps"
)

// ResolveBindings returns the provider's data with the call-site bindings laid over it. Call-site
// values always win and are never merged, so a provider cannot alter the message or log bindings.
func ResolveBindings(
	ctx context.Context,
	provider Getter,
	callSite map[string]any,
) (map[string]any, error) {
	if provider == nil {
		return maps.Clone(callSite), nil
	}
	d, err := provider.GetData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load script data: %w", err)
	}
	out := make(map[string]any, len(d)+len(callSite))
	maps.Copy(out, d)
	maps.Copy(out, callSite)
	return out, nil
}
