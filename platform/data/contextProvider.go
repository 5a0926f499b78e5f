package data

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/robbyt/go-scriptsvc/platform/constants"
)

// ContextProvider retrieves and stores data in the context using a specified key.
type ContextProvider struct {
	contextKey constants.ContextKey
}

// NewContextProvider creates a new ContextProvider with the given context key.
func NewContextProvider(contextKey constants.ContextKey) *ContextProvider {
	return &ContextProvider{contextKey: contextKey}
}

// GetData extracts data from the context using the configured context key.
func (p *ContextProvider) GetData(ctx context.Context) (map[string]any, error) {
	if p.contextKey == "" {
		return nil, ErrEmptyContextKey
	}

	value := ctx.Value(p.contextKey)
	if value == nil {
		return make(map[string]any), nil
	}

	d, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid input data type: expected map[string]any, got %T", value)
	}
	return d, nil
}

// AddDataToContext merges the provided maps into the data already stored in the context. Nested
// maps are merged recursively and later values win. Entries with empty keys are reported but the
// remaining entries are still stored.
func (p *ContextProvider) AddDataToContext(
	ctx context.Context,
	data ...map[string]any,
) (context.Context, error) {
	if p.contextKey == "" {
		return ctx, ErrEmptyContextKey
	}

	var errz []error
	toStore := make(map[string]any)
	if existing, ok := ctx.Value(p.contextKey).(map[string]any); ok {
		maps.Copy(toStore, existing)
	}

	for _, dataMap := range data {
		for key, value := range dataMap {
			if key == "" {
				errz = append(errz, ErrEmptyKey)
				continue
			}
			normalized, err := normalize(value)
			if err != nil {
				errz = append(errz, fmt.Errorf("key %q: %w", key, err))
				continue
			}
			mergeInto(toStore, key, normalized)
		}
	}

	return context.WithValue(ctx, p.contextKey, toStore), errors.Join(errz...)
}

// normalize converts string maps to map[string]any so scripts see one map shape.
func normalize(value any) (any, error) {
	switch v := value.(type) {
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if k == "" {
				return nil, ErrEmptyKey
			}
			n, err := normalize(val)
			if err != nil {
				return nil, fmt.Errorf("nested key %q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

func mergeInto(target map[string]any, key string, value any) {
	if newMap, ok := value.(map[string]any); ok {
		if existing, ok := target[key].(map[string]any); ok {
			merged := maps.Clone(existing)
			for k, v := range newMap {
				mergeInto(merged, k, v)
			}
			target[key] = merged
			return
		}
	}
	target[key] = value
}
