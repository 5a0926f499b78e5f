// Package types names the scripting runtimes an interpreter can be built on.
package types

import (
	"fmt"
	"strings"
)

// Type identifies a scripting runtime.
type Type string

const (
	// Starlark engine: https://github.com/google/starlark-go
	Starlark Type = "starlark"
	// Lua engine: https://github.com/yuin/gopher-lua
	Lua Type = "lua"
	// Tengo engine: https://github.com/d5/tengo
	Tengo Type = "tengo"
	// Risor engine: https://github.com/risor-io/risor
	Risor Type = "risor"
	// Extism WASM engine: https://extism.org/
	Extism Type = "extism"
)

// All returns every supported runtime, in a stable order.
func All() []Type {
	return []Type{Starlark, Lua, Tengo, Risor, Extism}
}

func (t Type) String() string {
	return string(t)
}

// Valid reports whether t names a supported runtime.
func (t Type) Valid() bool {
	for _, known := range All() {
		if t == known {
			return true
		}
	}
	return false
}

// UnmarshalText accepts any casing, so "Starlark" and "STARLARK" both work in config files.
func (t *Type) UnmarshalText(text []byte) error {
	v := Type(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("unknown script language %q", string(text))
	}
	*t = v
	return nil
}
