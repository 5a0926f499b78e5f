package data

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// CompositeProvider combines multiple providers, with later providers
// overriding values from earlier ones in the chain.
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider creates a provider that queries given providers in order.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

// GetData deep-merges the data of every provider. Returns the first provider error.
func (p *CompositeProvider) GetData(ctx context.Context) (map[string]any, error) {
	result := make(map[string]any)
	for i, provider := range p.providers {
		if provider == nil {
			continue
		}
		d, err := provider.GetData(ctx)
		if err != nil {
			return nil, fmt.Errorf("error from provider %d: %w", i, err)
		}
		result = deepMerge(result, d)
	}
	return result, nil
}

// AddDataToContext offers the data to every provider that accepts runtime updates. Static
// providers are skipped. Fails only when no provider accepted the data.
func (p *CompositeProvider) AddDataToContext(
	ctx context.Context,
	data ...map[string]any,
) (context.Context, error) {
	finalCtx := ctx
	var errz []error
	accepted := 0

	for i, provider := range p.providers {
		if provider == nil {
			continue
		}
		nextCtx, err := provider.AddDataToContext(finalCtx, data...)
		if errors.Is(err, ErrStaticProviderNoRuntimeUpdates) {
			continue
		}
		if err != nil {
			errz = append(errz, fmt.Errorf("error from provider %d: %w", i, err))
			continue
		}
		finalCtx = nextCtx
		accepted++
	}

	if accepted == 0 {
		if len(errz) == 0 {
			return ctx, ErrStaticProviderNoRuntimeUpdates
		}
		return ctx, errors.Join(errz...)
	}
	return finalCtx, nil
}

// deepMerge returns src overlaid with dst. Nested maps merge; every other type is replaced.
func deepMerge(src, dst map[string]any) map[string]any {
	result := maps.Clone(src)
	if result == nil {
		result = make(map[string]any, len(dst))
	}
	for k, dstVal := range dst {
		srcMap, srcIsMap := result[k].(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			result[k] = deepMerge(srcMap, dstMap)
			continue
		}
		result[k] = dstVal
	}
	return result
}
