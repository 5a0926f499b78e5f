package container

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory) error

// WithLogHandler sets the handler used by the factory and every interpreter it creates.
func WithLogHandler(handler slog.Handler) FactoryOption {
	return func(f *Factory) error {
		if handler == nil {
			return errors.New("log handler cannot be nil")
		}
		f.logHandler = handler
		return nil
	}
}

// WithFs sets the filesystem holding scripts, library directories and modules.
func WithFs(fs afero.Fs) FactoryOption {
	return func(f *Factory) error {
		if fs == nil {
			return errors.New("filesystem cannot be nil")
		}
		f.fs = fs
		return nil
	}
}

// WithResources sets the filesystem consulted first for classpath locations, usually an
// embed.FS wrapped with afero.FromIOFS.
func WithResources(fs afero.Fs) FactoryOption {
	return func(f *Factory) error {
		f.resources = fs
		return nil
	}
}

// WithBaseDir anchors relative script locations.
func WithBaseDir(dir string) FactoryOption {
	return func(f *Factory) error {
		f.baseDir = dir
		return nil
	}
}

// WithMetrics records compilations on m.
func WithMetrics(m *telemetry.Metrics) FactoryOption {
	return func(f *Factory) error {
		f.metrics = m
		return nil
	}
}

// WithEngine overrides the engine used for e.Type().
func WithEngine(e platform.Engine) FactoryOption {
	return func(f *Factory) error {
		if e == nil {
			return errors.New("engine cannot be nil")
		}
		f.engines[e.Type()] = e
		return nil
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// ConfigureHook runs against a freshly created interpreter before a Manager hands it out.
type ConfigureHook func(ctx context.Context, interp *Interpreter) error

// WithConfigureHook appends a hook. Hooks run in registration order.
func WithConfigureHook(hook ConfigureHook) ManagerOption {
	return func(m *Manager) {
		if hook != nil {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// WithManagerMetrics records builds and terminations on metrics.
func WithManagerMetrics(metrics *telemetry.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}
