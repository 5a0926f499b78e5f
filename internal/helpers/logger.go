package helpers

import (
	"log/slog"
	"os"
)

// SetupLogger returns the handler to pass further down and a logger for the calling component.
// A nil handler falls back to a text handler on stdout grouped under component, and a warning is
// logged so the missing wiring is visible. groupName, when set, nests the component's own output.
func SetupLogger(handler slog.Handler, component string, groupName string) (slog.Handler, *slog.Logger) {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, nil).WithGroup(component)
		slog.New(handler).Warn("Handler is nil, using the default logger configuration.")
	}

	if groupName != "" {
		return handler, slog.New(handler.WithGroup(groupName))
	}
	return handler, slog.New(handler)
}

// DiscardHandler returns a handler that drops every record, for tests and quiet CLI modes.
func DiscardHandler() slog.Handler {
	return slog.DiscardHandler
}
