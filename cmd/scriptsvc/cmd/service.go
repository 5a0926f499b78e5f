package cmd

import (
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	scriptsvc "github.com/robbyt/go-scriptsvc"
	"github.com/robbyt/go-scriptsvc/container"
	"github.com/robbyt/go-scriptsvc/internal/config"
	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/constants"
	"github.com/robbyt/go-scriptsvc/platform/data"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
	"github.com/robbyt/go-scriptsvc/runner"
	"github.com/robbyt/go-scriptsvc/service"
)

// newService wires def into a service. Relative script locations resolve against the directory
// holding the definition file.
func (a *app) newService(
	def *config.File,
	metrics *telemetry.Metrics,
	tracer trace.Tracer,
	overrides ...options.Option,
) (*service.Service, error) {
	baseDir, err := filepath.Abs(filepath.Dir(a.configPath))
	if err != nil {
		return nil, err
	}

	r := runner.New(
		runner.WithLogHandler(a.logHandler),
		runner.WithProvider(data.NewCompositeProvider(
			data.NewStaticProvider(def.Globals),
			data.NewContextProvider(constants.EvalData),
		)),
		runner.WithMetrics(metrics),
		runner.WithTracer(tracer),
	)

	interp := def.Interpreter.Clone()
	useDefinition := func(c *options.Config) error {
		*c = *interp
		return nil
	}

	return scriptsvc.NewService(interp.Language, def.ScriptSet(),
		scriptsvc.WithLogHandler(a.logHandler),
		scriptsvc.WithInterpreterOptions(append([]options.Option{useDefinition}, overrides...)...),
		scriptsvc.WithFactoryOptions(
			container.WithFs(a.fs),
			container.WithBaseDir(baseDir),
		),
		scriptsvc.WithMetrics(metrics),
		scriptsvc.WithRunner(r),
	)
}
