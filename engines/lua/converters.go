package lua

import (
	"fmt"
	"log/slog"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case lua.LValue:
		return val, nil
	case envelope.Envelope:
		return newMessage(L, val), nil
	case *slog.Logger:
		return newLogTable(L, val), nil
	case bool:
		return lua.LBool(val), nil
	case int:
		return lua.LNumber(val), nil
	case int32:
		return lua.LNumber(val), nil
	case int64:
		return lua.LNumber(val), nil
	case uint64:
		return lua.LNumber(val), nil
	case float32:
		return lua.LNumber(val), nil
	case float64:
		return lua.LNumber(val), nil
	case string:
		return lua.LString(val), nil
	case []byte:
		return lua.LString(val), nil
	case []string:
		tbl := L.CreateTable(len(val), 0)
		for _, s := range val {
			tbl.Append(lua.LString(s))
		}
		return tbl, nil
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for _, elem := range val {
			lv, err := toLua(L, elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			tbl.Append(lv)
		}
		return tbl, nil
	case map[string]string:
		tbl := L.CreateTable(0, len(val))
		for k, s := range val {
			tbl.RawSetString(k, lua.LString(s))
		}
		return tbl, nil
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		for k, elem := range val {
			lv, err := toLua(L, elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert table value: %w", err)
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromLua converts plain Lua data to Go. ok is false for functions, userdata and threads.
// Tables with a non-empty array part and no other keys become slices.
func fromLua(v lua.LValue) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case *lua.LNilType:
		return nil, true
	case lua.LBool:
		return bool(val), true
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), true
		}
		return f, true
	case lua.LString:
		return string(val), true
	case *lua.LTable:
		return tableToGo(val), true
	default:
		return nil, false
	}
}

func tableToGo(tbl *lua.LTable) any {
	n := tbl.MaxN()
	isArray := n > 0
	if isArray {
		count := 0
		tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })
		isArray = count == n
	}

	if isArray {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			v, _ := fromLua(tbl.RawGetInt(i))
			out = append(out, v)
		}
		return out
	}

	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		gv, ok := fromLua(v)
		if !ok {
			return
		}
		out[k.String()] = gv
	})
	return out
}
