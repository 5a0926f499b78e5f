package extism

import (
	"context"
	"log/slog"

	extismSDK "github.com/extism/go-sdk"
)

// HostNamespace is the import module guests use for host functions.
const HostNamespace = "extism:host/user"

type loggerKey struct{}

func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

// logHostFunction exports log(level i64, message ptr) to guests. Levels follow slog: -4 debug,
// 0 info, 4 warn, 8 error.
func logHostFunction(fallback *slog.Logger) extismSDK.HostFunction {
	fn := extismSDK.NewHostFunctionWithStack(
		"log",
		func(ctx context.Context, p *extismSDK.CurrentPlugin, stack []uint64) {
			logger := loggerFrom(ctx, fallback)
			msg, err := p.ReadString(stack[1])
			if err != nil {
				logger.WarnContext(ctx, "failed to read guest log message", "error", err)
				return
			}
			logger.Log(ctx, slog.Level(int64(stack[0])), msg)
		},
		[]extismSDK.ValueType{extismSDK.ValueTypeI64, extismSDK.ValueTypePTR},
		nil,
	)
	fn.SetNamespace(HostNamespace)
	return fn
}

// sdkLogger forwards PDK log calls made by the guest.
func sdkLogger(ctx context.Context, logger *slog.Logger) func(extismSDK.LogLevel, string) {
	return func(level extismSDK.LogLevel, msg string) {
		logger.Log(ctx, sdkLevel(level), msg, "source", "pdk")
	}
}

func sdkLevel(level extismSDK.LogLevel) slog.Level {
	switch level {
	case extismSDK.LogLevelTrace, extismSDK.LogLevelDebug:
		return slog.LevelDebug
	case extismSDK.LogLevelWarn:
		return slog.LevelWarn
	case extismSDK.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
