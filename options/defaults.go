package options

import (
	"github.com/robbyt/go-scriptsvc/engines/types"
)

const (
	DefaultContextScope        = ScopeThreadsafe
	DefaultVariablePersistence = PersistTransient
	DefaultCompileMode         = CompileJIT
	DefaultEntryPoint          = "handle"
)

// DefaultConfig initializes a Config with sensible defaults
func DefaultConfig(language types.Type) *Config {
	return &Config{
		Language:            language,
		ContextScope:        DefaultContextScope,
		VariablePersistence: DefaultVariablePersistence,
		CompileMode:         DefaultCompileMode,
		IncludeSubdirs:      true,
		EntryPoint:          DefaultEntryPoint,
	}
}

// WithDefaults fills in any enum left empty
func WithDefaults() Option {
	return func(c *Config) error {
		if c.ContextScope == "" {
			c.ContextScope = DefaultContextScope
		}
		if c.VariablePersistence == "" {
			c.VariablePersistence = DefaultVariablePersistence
		}
		if c.CompileMode == "" {
			c.CompileMode = DefaultCompileMode
		}
		if c.Language == types.Extism && c.EntryPoint == "" {
			c.EntryPoint = DefaultEntryPoint
		}
		return nil
	}
}
