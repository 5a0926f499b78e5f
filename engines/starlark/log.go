package starlark

import (
	"context"
	"log/slog"
	"strings"

	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ctxLocalKey is the thread-local slot holding the evaluation context.
const ctxLocalKey = "scriptsvc.ctx"

// newLogModule builds the "log" binding: log.info("msg", key=value, ...).
func newLogModule(logger *slog.Logger) *starlarkstruct.Module {
	members := make(starlarkLib.StringDict, 4)
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		members[name] = starlarkLib.NewBuiltin(name, logBuiltin(logger, level))
	}
	return &starlarkstruct.Module{Name: "log", Members: members}
}

func logBuiltin(logger *slog.Logger, level slog.Level) func(
	*starlarkLib.Thread, *starlarkLib.Builtin, starlarkLib.Tuple, []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	return func(
		thread *starlarkLib.Thread,
		_ *starlarkLib.Builtin,
		args starlarkLib.Tuple,
		kwargs []starlarkLib.Tuple,
	) (starlarkLib.Value, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			if s, ok := a.(starlarkLib.String); ok {
				parts = append(parts, string(s))
				continue
			}
			parts = append(parts, a.String())
		}

		attrs := make([]any, 0, len(kwargs)*2)
		for _, kv := range kwargs {
			attrs = append(attrs, string(kv[0].(starlarkLib.String)), fromStarlark(kv[1]))
		}
		logger.Log(threadContext(thread), level, strings.Join(parts, " "), attrs...)
		return starlarkLib.None, nil
	}
}

func threadContext(thread *starlarkLib.Thread) context.Context {
	if ctx, ok := thread.Local(ctxLocalKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
