package tengo

import (
	"context"
	"fmt"
	"log/slog"

	tengoLib "github.com/d5/tengo/v2"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

func toTengo(ctx context.Context, v any) (tengoLib.Object, error) {
	switch val := v.(type) {
	case envelope.Envelope:
		return newMessageObject(val), nil
	case *slog.Logger:
		return newLogObject(ctx, val), nil
	case map[string]string:
		m := make(map[string]tengoLib.Object, len(val))
		for k, s := range val {
			m[k] = &tengoLib.String{Value: s}
		}
		return &tengoLib.Map{Value: m}, nil
	case []string:
		arr := make([]tengoLib.Object, 0, len(val))
		for _, s := range val {
			arr = append(arr, &tengoLib.String{Value: s})
		}
		return &tengoLib.Array{Value: arr}, nil
	case map[string]any:
		m := make(map[string]tengoLib.Object, len(val))
		for k, elem := range val {
			obj, err := toTengo(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert map value %q: %w", k, err)
			}
			m[k] = obj
		}
		return &tengoLib.Map{Value: m}, nil
	case []any:
		arr := make([]tengoLib.Object, 0, len(val))
		for _, elem := range val {
			obj, err := toTengo(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert array element: %w", err)
			}
			arr = append(arr, obj)
		}
		return &tengoLib.Array{Value: arr}, nil
	case float32:
		return &tengoLib.Float{Value: float64(val)}, nil
	case int32:
		return &tengoLib.Int{Value: int64(val)}, nil
	case uint64:
		return &tengoLib.Int{Value: int64(val)}, nil
	default:
		return tengoLib.FromInterface(v)
	}
}

// fromTengo converts plain Tengo data to Go. ok is false for functions, errors and host objects.
func fromTengo(obj tengoLib.Object) (any, bool) {
	switch o := obj.(type) {
	case *tengoLib.Undefined:
		return nil, true
	case *tengoLib.Int:
		return o.Value, true
	case *tengoLib.Float:
		return o.Value, true
	case *tengoLib.Bool:
		return !o.IsFalsy(), true
	case *tengoLib.String:
		return o.Value, true
	case *tengoLib.Char:
		return string(o.Value), true
	case *tengoLib.Bytes:
		return o.Value, true
	case *tengoLib.Time:
		return o.Value, true
	case *tengoLib.Array:
		return arrayToGo(o.Value), true
	case *tengoLib.ImmutableArray:
		return arrayToGo(o.Value), true
	case *tengoLib.Map:
		return mapToGo(o.Value)
	case *tengoLib.ImmutableMap:
		return mapToGo(o.Value)
	default:
		return nil, false
	}
}

func arrayToGo(objs []tengoLib.Object) []any {
	out := make([]any, 0, len(objs))
	for _, elem := range objs {
		if v, ok := fromTengo(elem); ok {
			out = append(out, v)
		}
	}
	return out
}

// mapToGo reports false for a non-empty map holding no data at all, such as an imported module.
func mapToGo(objs map[string]tengoLib.Object) (map[string]any, bool) {
	out := make(map[string]any, len(objs))
	for k, elem := range objs {
		if v, ok := fromTengo(elem); ok {
			out[k] = v
		}
	}
	return out, len(out) > 0 || len(objs) == 0
}
