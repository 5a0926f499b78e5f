package options

import (
	"fmt"
	"strings"
)

// ContextScope controls how evaluations on one interpreter may overlap.
type ContextScope string

const (
	// ScopeShared makes every interpreter of a factory share one runtime and one variable store.
	ScopeShared ContextScope = "shared"
	// ScopeSinglethread performs no serialization; callers use the interpreter from one goroutine.
	ScopeSinglethread ContextScope = "singlethread"
	// ScopeThreadsafe serializes evaluations with a per-interpreter mutex.
	ScopeThreadsafe ContextScope = "threadsafe"
	// ScopeConcurrent runs evaluations in parallel with isolated top-level state.
	ScopeConcurrent ContextScope = "concurrent"
)

// VariablePersistence controls whether top-level variables survive between evaluations.
type VariablePersistence string

const (
	// PersistTransient discards script globals after each evaluation.
	PersistTransient VariablePersistence = "transient"
	// PersistPersistent keeps script globals and re-binds them into later evaluations.
	PersistPersistent VariablePersistence = "persistent"
	// PersistGlobal keeps script globals and also exposes them to loaded modules.
	PersistGlobal VariablePersistence = "global"
)

// CompileMode controls when script sources are compiled.
type CompileMode string

const (
	// CompileJIT compiles a script on first use and caches the program.
	CompileJIT CompileMode = "jit"
	// CompileForced compiles every configured script up front.
	CompileForced CompileMode = "forced"
	// CompileOff compiles the script on every evaluation.
	CompileOff CompileMode = "off"
)

func (s ContextScope) String() string        { return string(s) }
func (p VariablePersistence) String() string { return string(p) }
func (m CompileMode) String() string         { return string(m) }

// UnmarshalText parses a scope name in any casing.
func (s *ContextScope) UnmarshalText(text []byte) error {
	v, err := parseEnum(text, "context scope",
		ScopeShared, ScopeSinglethread, ScopeThreadsafe, ScopeConcurrent)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalText parses a persistence name in any casing.
func (p *VariablePersistence) UnmarshalText(text []byte) error {
	v, err := parseEnum(text, "variable persistence",
		PersistTransient, PersistPersistent, PersistGlobal)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalText parses a compile mode in any casing.
func (m *CompileMode) UnmarshalText(text []byte) error {
	v, err := parseEnum(text, "compile mode", CompileJIT, CompileForced, CompileOff)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func parseEnum[T ~string](text []byte, kind string, allowed ...T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(string(text))))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, kind, string(text))
}
