package loader

import (
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
)

// FindInPath looks for name in each directory of searchPath, in order, and returns the first
// regular file found. When exts is non-empty and name has none of them, each extension is tried
// in turn. Absolute names are checked directly.
func FindInPath(fs afero.Fs, searchPath []string, name string, exts ...string) (string, bool) {
	candidates := []string{name}
	if len(exts) > 0 && !slices.Contains(exts, filepath.Ext(name)) {
		candidates = make([]string, 0, len(exts))
		for _, ext := range exts {
			candidates = append(candidates, name+ext)
		}
	}

	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if isFile(fs, c) {
				return filepath.Clean(c), true
			}
		}
		return "", false
	}

	for _, dir := range searchPath {
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			if isFile(fs, p) {
				return p, true
			}
		}
	}
	return "", false
}

func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
