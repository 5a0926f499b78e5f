// Package config loads the YAML service definition used by the scriptsvc command.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/robbyt/go-scriptsvc/options"
	"github.com/robbyt/go-scriptsvc/platform/script/loader"
	"github.com/robbyt/go-scriptsvc/service"
)

const DefaultMetricsNamespace = "scriptsvc"

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the on-disk service definition.
type File struct {
	Interpreter options.Config                   `yaml:"interpreter"`
	Scripts     map[service.Phase]loader.Location `yaml:"scripts"`
	Globals     map[string]any                    `yaml:"globals"`
	Metrics     Metrics                           `yaml:"metrics"`
}

// Metrics configures the Prometheus registry and its optional HTTP listener.
type Metrics struct {
	Namespace string `yaml:"namespace" validate:"required,excludesall= -."`
	Listen    string `yaml:"listen"    validate:"omitempty,hostname_port"`
}

// Load reads path from fs, expands environment references and parses the result.
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes a definition over the defaults and validates it. The interpreter language is
// required; every other interpreter setting falls back to its default.
func Parse(data []byte) (*File, error) {
	f := &File{
		Interpreter: *options.DefaultConfig(""),
		Metrics:     Metrics{Namespace: DefaultMetricsNamespace},
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	if err := f.Interpreter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := validate.Struct(f.Metrics); err != nil {
		return nil, fmt.Errorf("%w: metrics: %w", ErrInvalid, err)
	}
	for phase, loc := range f.Scripts {
		if loc.IsBlank() {
			delete(f.Scripts, phase)
		}
	}
	return f, nil
}

// ScriptSet returns the configured scripts keyed by phase.
func (f *File) ScriptSet() service.ScriptSet {
	set := make(service.ScriptSet, len(f.Scripts))
	for phase, loc := range f.Scripts {
		set[phase] = loc
	}
	return set
}

// LoadEnv reads KEY=VALUE pairs from path and exports the ones not already present in the
// environment. A blank path is a no-op.
func LoadEnv(fs afero.Fs, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	file, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnvFile, err)
	}
	defer func() { _ = file.Close() }()

	values, err := godotenv.Parse(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEnvFile, path, err)
	}
	for key, value := range values {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEnvFile, key, err)
		}
	}
	return nil
}
