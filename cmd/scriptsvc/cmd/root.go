// Package cmd implements the scriptsvc command line: run a script service over stdin, check a
// service definition, print the version.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/robbyt/go-scriptsvc/internal/config"
)

type app struct {
	fs     afero.Fs
	stdin  io.Reader
	getenv func(string) string

	configPath string
	envFile    string
	logFormat  string
	logLevel   string

	logHandler slog.Handler
	logger     *slog.Logger
}

// NewRootCommand returns the scriptsvc command tree bound to the OS filesystem and stdin.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{fs: afero.NewOsFs(), stdin: os.Stdin, getenv: os.Getenv})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "scriptsvc",
		Short: "Run lifecycle and message scripts on an embedded interpreter",
		Long: `scriptsvc hosts a Starlark, Lua, Tengo or Extism (WASM) interpreter and drives the
init, start, service, stop and close scripts of a service definition.

Available commands:
  run       Process stdin lines through the service script
  check     Build the interpreter and compile every configured script
  eval      Evaluate one script and print the variables it defines
  version   Print the version`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnv(a.fs, a.envFile); err != nil {
				return err
			}
			return a.setupLogging(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "scriptsvc.yaml", "service definition file")
	flags.StringVar(&a.envFile, "env-file", "", "load environment variables from this file first")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json (default $LOG_FORMAT or text)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (default $LOG_LEVEL or info)")

	root.AddCommand(newRunCommand(a), newCheckCommand(a), newEvalCommand(a), newVersionCommand())
	return root
}

func (a *app) setupLogging(w io.Writer) error {
	format := firstNonBlank(a.logFormat, a.getenv("LOG_FORMAT"), "text")
	levelText := firstNonBlank(a.logLevel, a.getenv("LOG_LEVEL"), "info")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelText, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "json":
		a.logHandler = slog.NewJSONHandler(w, opts)
	case "text":
		a.logHandler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	a.logger = slog.New(a.logHandler)
	return nil
}

func (a *app) loadDefinition() (*config.File, error) {
	def, err := config.Load(a.fs, a.configPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("loaded service definition",
		"path", a.configPath,
		"language", def.Interpreter.Language,
		"scripts", len(def.Scripts),
	)
	return def, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
