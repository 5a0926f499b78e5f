package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

var errCheckFailed = errors.New("service definition check failed")

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Build the interpreter and compile every configured script without running any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			def, err := a.loadDefinition()
			if err != nil {
				return err
			}

			svc, err := a.newService(def, nil, telemetry.NoopTracer(),
				options.WithCompileMode(options.CompileForced))
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

			out := cmd.OutOrStdout()
			failed := 0
			for _, phase := range svc.Scripts().Configured() {
				loc := svc.Scripts().Get(phase)
				if err := interp.Precompile(ctx, *loc); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %-7s %s: %v\n", phase, loc, err)
					continue
				}
				fmt.Fprintf(out, "ok   %-7s %s\n", phase, loc)
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d scripts", errCheckFailed, failed, len(svc.Scripts().Configured()))
			}
			return nil
		},
	}
}
