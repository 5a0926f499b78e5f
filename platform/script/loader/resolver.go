package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Resolver turns a Location into a Loader.
type Resolver struct {
	// Fs holds absolute and relative scripts and the search path. Defaults to the OS filesystem.
	Fs afero.Fs
	// Resources holds bundled classpath resources; optional.
	Resources afero.Fs
	// BaseDir anchors relative locations. Defaults to the working directory.
	BaseDir string
}

// Resolve finds the script for loc. searchPath is consulted for classpath locations after the
// bundled resources.
func (r *Resolver) Resolve(loc Location, searchPath []string) (Loader, error) {
	if loc.IsBlank() {
		return nil, ErrBlankLocation
	}
	fs := r.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	switch loc.EffectiveKind() {
	case KindAbsolute:
		return r.fromPath(fs, loc.Path)
	case KindRelative:
		base := r.BaseDir
		if base == "" {
			base = "."
		}
		return r.fromPath(fs, filepath.Join(base, loc.Path))
	case KindClasspath:
		return r.fromClasspath(fs, loc.Path, searchPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPathKind, loc.Kind)
	}
}

func (r *Resolver) fromPath(fs afero.Fs, path string) (Loader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptNotAvailable, err)
	}
	if !isFile(fs, abs) {
		return nil, fmt.Errorf("%w: %s not found", ErrScriptNotAvailable, abs)
	}
	return NewFromDisk(fs, abs)
}

func (r *Resolver) fromClasspath(fs afero.Fs, name string, searchPath []string) (Loader, error) {
	name = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(name)), "/")
	if r.Resources != nil && isFile(r.Resources, name) {
		return NewFromResource(r.Resources, name)
	}
	if found, ok := FindInPath(fs, searchPath, filepath.FromSlash(name)); ok {
		return r.fromPath(fs, found)
	}
	return nil, fmt.Errorf("%w: resource %q not found", ErrScriptNotAvailable, name)
}
