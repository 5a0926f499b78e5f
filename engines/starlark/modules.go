package starlark

import (
	"maps"

	starlarkJSON "go.starlark.net/lib/json"
	starlarkMath "go.starlark.net/lib/math"
	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Module namespaces predeclared for every script and every loaded module.
const (
	namespaceJSON = "json"
	namespaceMath = "math"
	namespaceTime = "time"
)

// moduleExt is the extension tried when load() names a module without one.
const moduleExt = ".star"

// standardModules returns the extra modules bound next to the Starlark universe.
func standardModules() starlarkLib.StringDict {
	return starlarkLib.StringDict{
		namespaceJSON: starlarkJSON.Module,
		namespaceMath: starlarkMath.Module,
		namespaceTime: starlarkTime.Module,
	}
}

// fileOptions enables the dialect features scripts commonly rely on. Top-level control flow and
// global reassignment let lifecycle scripts be written as plain statements.
func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// isPredeclared treats every non-universal name as a binding supplied at execution time, since
// bindings differ between runs (host values, provider data, persisted variables).
func isPredeclared(name string) bool {
	return !starlarkLib.Universe.Has(name)
}

// predeclared merges the standard modules with the converted bindings; bindings win.
func predeclared(bindings starlarkLib.StringDict) starlarkLib.StringDict {
	out := make(starlarkLib.StringDict, len(bindings)+3)
	maps.Copy(out, standardModules())
	maps.Copy(out, bindings)
	return out
}
