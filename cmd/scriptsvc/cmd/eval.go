package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/robbyt/go-scriptsvc/engines/starlark"
	"github.com/robbyt/go-scriptsvc/platform"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

var errNoSource = errors.New("no script given: use --expr, a file argument, or - for stdin")

func newEvalCommand(a *app) *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "eval [file|-]",
		Short: "Evaluate a script once on the configured interpreter and print its variables as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ldr, err := a.evalSource(expr, args)
			if err != nil {
				return err
			}
			def, err := a.loadDefinition()
			if err != nil {
				return err
			}
			svc, err := a.newService(def, nil, telemetry.NoopTracer())
			if err != nil {
				return err
			}

			manager := svc.Manager()
			interp, err := manager.Build(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := manager.Shutdown(ctx); err != nil {
					a.logger.Error("failed to terminate interpreter", "error", err)
				}
			}()

			vars := make(platform.Bindings, len(def.Globals)+1)
			maps.Copy(vars, def.Globals)
			vars[platform.BindingLog] = slog.New(a.logHandler.WithGroup("script"))

			out, err := interp.EvalLoader(ctx, ldr, vars)
			if err != nil {
				return err
			}
			result := make(map[string]any, len(out))
			for name, v := range out {
				if _, global := def.Globals[name]; global || platform.IsHostBinding(name) {
					continue
				}
				result[name] = starlark.ToGo(v)
			}
			if len(result) == 0 {
				return nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&expr, "expr", "e", "", "script source to evaluate")
	return cmd
}

// evalSource picks the inline expression, a file from the definition filesystem, or stdin.
func (a *app) evalSource(expr string, args []string) (loader.Loader, error) {
	switch {
	case expr != "":
		return loader.NewFromString(expr)
	case len(args) == 0:
		return nil, errNoSource
	case args[0] == "-":
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return loader.NewFromBytes(data)
	default:
		data, err := afero.ReadFile(a.fs, args[0])
		if err != nil {
			return nil, err
		}
		return loader.NewFromBytes(data)
	}
}
