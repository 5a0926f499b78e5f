package lua

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

const messageTypeName = "scriptsvc.message"

// registerMessageType installs the metatable shared by every message userdata on L.
//
//	message.id, message.payload, message.metadata
//	message.payload = "..."
//	message:get_metadata(k [, default]), message:set_metadata(k, v), message:delete_metadata(k)
func registerMessageType(L *lua.LState) {
	mt := L.NewTypeMetatable(messageTypeName)
	methods := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get_metadata":    messageGetMetadata,
		"set_metadata":    messageSetMetadata,
		"delete_metadata": messageDeleteMetadata,
	})

	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		env := checkMessage(L, 1)
		switch key := L.CheckString(2); key {
		case "id":
			L.Push(lua.LString(env.ID()))
		case "payload":
			L.Push(lua.LString(env.Payload()))
		case "metadata":
			tbl := L.NewTable()
			for k, v := range env.Metadata() {
				tbl.RawSetString(k, lua.LString(v))
			}
			L.Push(tbl)
		default:
			L.Push(methods.RawGetString(key))
		}
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		env := checkMessage(L, 1)
		if key := L.CheckString(2); key != "payload" {
			L.ArgError(2, "message has no writable field "+key)
			return 0
		}
		env.SetPayload([]byte(L.CheckString(3)))
		return 0
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("message " + checkMessage(L, 1).ID()))
		return 1
	}))
}

func newMessage(L *lua.LState, env envelope.Envelope) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = env
	L.SetMetatable(ud, L.GetTypeMetatable(messageTypeName))
	return ud
}

func checkMessage(L *lua.LState, n int) envelope.Envelope {
	ud := L.CheckUserData(n)
	if env, ok := ud.Value.(envelope.Envelope); ok {
		return env
	}
	L.ArgError(n, "message expected")
	return nil
}

func messageGetMetadata(L *lua.LState) int {
	env := checkMessage(L, 1)
	v := env.GetMetadata(L.CheckString(2))
	if v == "" {
		v = L.OptString(3, "")
	}
	L.Push(lua.LString(v))
	return 1
}

func messageSetMetadata(L *lua.LState) int {
	checkMessage(L, 1).SetMetadata(L.CheckString(2), L.CheckString(3))
	return 0
}

func messageDeleteMetadata(L *lua.LState) int {
	checkMessage(L, 1).DeleteMetadata(L.CheckString(2))
	return 0
}

// newLogTable builds the "log" binding: log.info("msg" [, {key = value}]).
func newLogTable(L *lua.LState, logger *slog.Logger) *lua.LTable {
	tbl := L.NewTable()
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		tbl.RawSetString(name, L.NewFunction(logFunc(logger, level)))
	}
	return tbl
}

func logFunc(logger *slog.Logger, level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		var attrs []any
		if fields := L.OptTable(2, nil); fields != nil {
			keys := make([]string, 0)
			values := make(map[string]any)
			fields.ForEach(func(k, v lua.LValue) {
				gv, ok := fromLua(v)
				if !ok {
					gv = v.String()
				}
				keys = append(keys, k.String())
				values[k.String()] = gv
			})
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, k, values[k])
			}
		}
		logger.Log(stateContext(L), level, msg, attrs...)
		return 0
	}
}

// printFunc replaces the base print so script output lands in the structured log.
func printFunc(logger *slog.Logger) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.InfoContext(stateContext(L), strings.Join(parts, "\t"))
		return 0
	}
}

func stateContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
