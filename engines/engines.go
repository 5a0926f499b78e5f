// Package engines maps script languages onto their engine implementations.
package engines

import (
	"errors"
	"fmt"

	"github.com/robbyt/go-scriptsvc/engines/extism"
	"github.com/robbyt/go-scriptsvc/engines/lua"
	"github.com/robbyt/go-scriptsvc/engines/risor"
	"github.com/robbyt/go-scriptsvc/engines/starlark"
	"github.com/robbyt/go-scriptsvc/engines/tengo"
	"github.com/robbyt/go-scriptsvc/engines/types"
	"github.com/robbyt/go-scriptsvc/platform"
)

// ErrUnknownLanguage is returned for a language with no registered engine.
var ErrUnknownLanguage = errors.New("unknown script language")

// ForType returns the engine for language.
func ForType(language types.Type) (platform.Engine, error) {
	switch language {
	case types.Starlark:
		return starlark.NewEngine(), nil
	case types.Lua:
		return lua.NewEngine(), nil
	case types.Tengo:
		return tengo.NewEngine(), nil
	case types.Risor:
		return risor.NewEngine(), nil
	case types.Extism:
		return extism.NewEngine(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, string(language))
	}
}

// ModuleExtension is the file extension of scripts written in language.
func ModuleExtension(language types.Type) string {
	switch language {
	case types.Starlark:
		return ".star"
	case types.Lua:
		return ".lua"
	case types.Tengo:
		return ".tengo"
	case types.Risor:
		return ".risor"
	case types.Extism:
		return ".wasm"
	default:
		return ""
	}
}
