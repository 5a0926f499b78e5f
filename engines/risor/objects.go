package risor

import (
	"context"
	"log/slog"
	"sort"

	risorObject "github.com/risor-io/risor/object"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// toRisor converts host bindings to Risor modules. Plain Go values are left to the VM, which
// converts them on the way in.
func toRisor(v any) any {
	switch val := v.(type) {
	case envelope.Envelope:
		return newMessageModule(val)
	case *slog.Logger:
		return newLogModule(val)
	default:
		return v
	}
}

// newMessageModule exposes an envelope to scripts:
//
//	message.id(), message.payload(), message.metadata()
//	message.set_payload(s)
//	message.get_metadata(k [, default]), message.set_metadata(k, v), message.delete_metadata(k)
func newMessageModule(env envelope.Envelope) *risorObject.Module {
	return risorObject.NewBuiltinsModule("message", map[string]risorObject.Object{
		"id": risorObject.NewBuiltin("id", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 0 {
				return risorObject.NewArgsError("message.id", 0, len(args))
			}
			return risorObject.NewString(env.ID())
		}),
		"payload": risorObject.NewBuiltin("payload", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 0 {
				return risorObject.NewArgsError("message.payload", 0, len(args))
			}
			return risorObject.NewString(string(env.Payload()))
		}),
		"set_payload": risorObject.NewBuiltin("set_payload", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 1 {
				return risorObject.NewArgsError("message.set_payload", 1, len(args))
			}
			s, err := risorObject.AsString(args[0])
			if err != nil {
				return err
			}
			env.SetPayload([]byte(s))
			return risorObject.Nil
		}),
		"metadata": risorObject.NewBuiltin("metadata", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 0 {
				return risorObject.NewArgsError("message.metadata", 0, len(args))
			}
			md := env.Metadata()
			out := make(map[string]risorObject.Object, len(md))
			for k, v := range md {
				out[k] = risorObject.NewString(v)
			}
			return risorObject.NewMap(out)
		}),
		"get_metadata": risorObject.NewBuiltin("get_metadata", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) < 1 || len(args) > 2 {
				return risorObject.NewArgsRangeError("message.get_metadata", 1, 2, len(args))
			}
			key, err := risorObject.AsString(args[0])
			if err != nil {
				return err
			}
			v := env.GetMetadata(key)
			if v == "" && len(args) == 2 {
				if def, err := risorObject.AsString(args[1]); err == nil {
					v = def
				}
			}
			return risorObject.NewString(v)
		}),
		"set_metadata": risorObject.NewBuiltin("set_metadata", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 2 {
				return risorObject.NewArgsError("message.set_metadata", 2, len(args))
			}
			key, err := risorObject.AsString(args[0])
			if err != nil {
				return err
			}
			value, err := risorObject.AsString(args[1])
			if err != nil {
				return err
			}
			env.SetMetadata(key, value)
			return risorObject.Nil
		}),
		"delete_metadata": risorObject.NewBuiltin("delete_metadata", func(_ context.Context, args ...risorObject.Object) risorObject.Object {
			if len(args) != 1 {
				return risorObject.NewArgsError("message.delete_metadata", 1, len(args))
			}
			key, err := risorObject.AsString(args[0])
			if err != nil {
				return err
			}
			env.DeleteMetadata(key)
			return risorObject.Nil
		}),
	})
}

// newLogModule builds the "log" binding: log.info("msg" [, {key: value}]).
func newLogModule(logger *slog.Logger) *risorObject.Module {
	fns := make(map[string]risorObject.Object, 4)
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		fns[name] = risorObject.NewBuiltin(name, logFunc(logger, level))
	}
	return risorObject.NewBuiltinsModule("log", fns)
}

func logFunc(logger *slog.Logger, level slog.Level) risorObject.BuiltinFunction {
	return func(ctx context.Context, args ...risorObject.Object) risorObject.Object {
		if len(args) < 1 || len(args) > 2 {
			return risorObject.NewArgsRangeError("log", 1, 2, len(args))
		}
		msg, err := risorObject.AsString(args[0])
		if err != nil {
			return err
		}

		var attrs []any
		if len(args) == 2 {
			if fields, ok := args[1].Interface().(map[string]any); ok {
				keys := make([]string, 0, len(fields))
				for k := range fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					attrs = append(attrs, k, fields[k])
				}
			}
		}
		logger.Log(ctx, level, msg, attrs...)
		return risorObject.Nil
	}
}
