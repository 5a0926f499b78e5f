// Package script holds compiled scripts and the per-interpreter cache that reuses them.
package script

import (
	"time"

	"github.com/robbyt/go-scriptsvc/platform"
)

// Executable is a compiled script together with where it came from.
type Executable struct {
	// Name is the source URL; it is also the cache key.
	Name string
	// Path is the file backing the script, empty for bundled or inline sources.
	Path string
	// Checksum is the SHA256 of the source the program was compiled from.
	Checksum   string
	Program    platform.Program
	CompiledAt time.Time
}
