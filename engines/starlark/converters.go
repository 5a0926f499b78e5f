package starlark

import (
	"fmt"
	"log/slog"
	"net/url"

	starlarkLib "go.starlark.net/starlark"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// toStarlarkDict converts bindings into Starlark values, freezing them when they may be shared
// between concurrent evaluations.
func toStarlarkDict(vars map[string]any, freeze bool) (starlarkLib.StringDict, error) {
	out := make(starlarkLib.StringDict, len(vars))
	for k, v := range vars {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert binding %q: %w", k, err)
		}
		if freeze {
			sv.Freeze()
		}
		out[k] = sv
	}
	return out, nil
}

func toStarlark(v any) (starlarkLib.Value, error) {
	if v == nil {
		return starlarkLib.None, nil
	}

	switch val := v.(type) {
	case starlarkLib.Value:
		return val, nil
	case envelope.Envelope:
		return newMessageValue(val), nil
	case *slog.Logger:
		return newLogModule(val), nil
	case bool:
		return starlarkLib.Bool(val), nil
	case int:
		return starlarkLib.MakeInt(val), nil
	case int32:
		return starlarkLib.MakeInt64(int64(val)), nil
	case int64:
		return starlarkLib.MakeInt64(val), nil
	case uint:
		return starlarkLib.MakeUint(val), nil
	case uint64:
		return starlarkLib.MakeUint64(val), nil
	case float32:
		return starlarkLib.Float(val), nil
	case float64:
		return starlarkLib.Float(val), nil
	case string:
		return starlarkLib.String(val), nil
	case []byte:
		return starlarkLib.Bytes(val), nil
	case *url.URL:
		return starlarkLib.String(val.String()), nil
	case []string:
		elements := make([]starlarkLib.Value, len(val))
		for i, s := range val {
			elements[i] = starlarkLib.String(s)
		}
		return starlarkLib.NewList(elements), nil
	case []any:
		elements := make([]starlarkLib.Value, len(val))
		for i, elem := range val {
			sv, err := toStarlark(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			elements[i] = sv
		}
		return starlarkLib.NewList(elements), nil
	case map[string]struct{}:
		// golang doesn't have a Set, but often a map[string]struct{} is used instead
		set := starlarkLib.NewSet(len(val))
		for k := range val {
			if err := set.Insert(starlarkLib.String(k)); err != nil {
				return nil, fmt.Errorf("failed to insert set element: %w", err)
			}
		}
		return set, nil
	case map[string]string:
		dict := starlarkLib.NewDict(len(val))
		for k, s := range val {
			if err := dict.SetKey(starlarkLib.String(k), starlarkLib.String(s)); err != nil {
				return nil, fmt.Errorf("failed to set dict key: %w", err)
			}
		}
		return dict, nil
	case map[string]any:
		dict := starlarkLib.NewDict(len(val))
		for k, elem := range val {
			sv, err := toStarlark(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value: %w", err)
			}
			if err := dict.SetKey(starlarkLib.String(k), sv); err != nil {
				return nil, fmt.Errorf("failed to set dict key: %w", err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromStarlark converts a Starlark value to plain Go data. Values without a Go equivalent
// (functions, host objects) become their string form.
func fromStarlark(v starlarkLib.Value) any {
	switch val := v.(type) {
	case nil, starlarkLib.NoneType:
		return nil
	case starlarkLib.Bool:
		return bool(val)
	case starlarkLib.Int:
		if i, ok := val.Int64(); ok {
			return i
		}
		return val.String()
	case starlarkLib.Float:
		return float64(val)
	case starlarkLib.String:
		return string(val)
	case starlarkLib.Bytes:
		return []byte(val)
	case *starlarkLib.List:
		out := make([]any, 0, val.Len())
		for i := range val.Len() {
			out = append(out, fromStarlark(val.Index(i)))
		}
		return out
	case starlarkLib.Tuple:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			out = append(out, fromStarlark(elem))
		}
		return out
	case *starlarkLib.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlarkLib.String)
			if !ok {
				out[item[0].String()] = fromStarlark(item[1])
				continue
			}
			out[string(key)] = fromStarlark(item[1])
		}
		return out
	default:
		return val.String()
	}
}

// ToGo converts a value produced by this runtime (for example a persisted variable) to plain Go
// data. Non-Starlark values are returned unchanged.
func ToGo(v any) any {
	sv, ok := v.(starlarkLib.Value)
	if !ok {
		return v
	}
	return fromStarlark(sv)
}
