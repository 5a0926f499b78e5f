package options

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/robbyt/go-scriptsvc/engines/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes how an interpreter is built. It is treated as immutable once handed to a
// factory; use Clone to derive a variant.
type Config struct {
	// Language selects the scripting runtime
	Language types.Type `yaml:"language" validate:"required,oneof=starlark lua tengo risor extism"`

	ContextScope        ContextScope        `yaml:"contextScope"        validate:"required,oneof=shared singlethread threadsafe concurrent"`
	VariablePersistence VariablePersistence `yaml:"variablePersistence" validate:"required,oneof=transient persistent global"`
	CompileMode         CompileMode         `yaml:"compileMode"         validate:"required,oneof=jit forced off"`

	// LoadPaths are handed to the runtime verbatim as module search directories.
	LoadPaths []string `yaml:"loadPaths"`

	// ExtraLibraryDirs are scanned when the interpreter is built. Missing entries are skipped.
	ExtraLibraryDirs []string `yaml:"extraLibraryDirs"`

	// IncludeSubdirs adds the immediate child directories of each library dir.
	IncludeSubdirs bool `yaml:"includeSubdirs"`

	// HomeDir overrides the runtime home directory when non-blank.
	HomeDir string `yaml:"homeDir"`

	// WatchScripts evicts cached programs when their source files change.
	WatchScripts bool `yaml:"watchScripts"`

	// EntryPoint is the exported function called on WASM plugins.
	EntryPoint string `yaml:"entryPoint" validate:"required_if=Language extism"`
}

// Option is a function that modifies Config
type Option func(*Config) error

// New returns a validated Config for the given language with the options applied over the defaults.
func New(language types.Type, opts ...Option) (*Config, error) {
	cfg := DefaultConfig(language)
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every enum holds a known value.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.LoadPaths = slices.Clone(c.LoadPaths)
	out.ExtraLibraryDirs = slices.Clone(c.ExtraLibraryDirs)
	return &out
}

// HasHomeDir reports whether the home directory override is set to something other than whitespace.
func (c *Config) HasHomeDir() bool {
	return strings.TrimSpace(c.HomeDir) != ""
}

// WithLanguage sets the scripting runtime
func WithLanguage(language types.Type) Option {
	return func(c *Config) error {
		if !language.Valid() {
			return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, language)
		}
		c.Language = language
		return nil
	}
}

// WithContextScope sets the concurrency contract of the interpreter
func WithContextScope(scope ContextScope) Option {
	return func(c *Config) error {
		c.ContextScope = scope
		return nil
	}
}

// WithVariablePersistence sets whether script globals survive between evaluations
func WithVariablePersistence(p VariablePersistence) Option {
	return func(c *Config) error {
		c.VariablePersistence = p
		return nil
	}
}

// WithCompileMode sets when scripts are compiled
func WithCompileMode(mode CompileMode) Option {
	return func(c *Config) error {
		c.CompileMode = mode
		return nil
	}
}

// WithLoadPaths appends module search directories
func WithLoadPaths(paths ...string) Option {
	return func(c *Config) error {
		c.LoadPaths = append(c.LoadPaths, paths...)
		return nil
	}
}

// WithExtraLibraryDirs appends library directories to scan at build time
func WithExtraLibraryDirs(dirs ...string) Option {
	return func(c *Config) error {
		c.ExtraLibraryDirs = append(c.ExtraLibraryDirs, dirs...)
		return nil
	}
}

// WithIncludeSubdirs toggles scanning of immediate child directories
func WithIncludeSubdirs(include bool) Option {
	return func(c *Config) error {
		c.IncludeSubdirs = include
		return nil
	}
}

// WithHomeDir sets the runtime home directory override
func WithHomeDir(dir string) Option {
	return func(c *Config) error {
		c.HomeDir = dir
		return nil
	}
}

// WithWatchScripts enables cache eviction on source file changes
func WithWatchScripts(watch bool) Option {
	return func(c *Config) error {
		c.WatchScripts = watch
		return nil
	}
}

// WithEntryPoint sets the exported WASM function to call
func WithEntryPoint(name string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: entry point is empty", ErrInvalidConfig)
		}
		c.EntryPoint = name
		return nil
	}
}
