package loader

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
)

const (
	schemeFile      = "file"
	schemeClasspath = "classpath"
)

// FromDisk reads a script from a filesystem. The filesystem is usually the OS, but resources
// embedded in the binary are read the same way through an afero wrapper.
type FromDisk struct {
	fs        afero.Fs
	path      string
	sourceURL *url.URL
}

// NewFromDisk creates a loader for an absolute path on fs.
func NewFromDisk(fs afero.Fs, path string) (*FromDisk, error) {
	path = strings.TrimPrefix(path, "file://")
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: relative path %q", ErrScriptNotAvailable, path)
	}
	path = filepath.Clean(path)
	if path == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: path is empty or invalid", ErrScriptNotAvailable)
	}
	return &FromDisk{
		fs:        fs,
		path:      path,
		sourceURL: &url.URL{Scheme: schemeFile, Path: filepath.ToSlash(path)},
	}, nil
}

// NewFromResource creates a loader for a named resource inside a resource filesystem.
func NewFromResource(fs afero.Fs, name string) (*FromDisk, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	if name == "" {
		return nil, fmt.Errorf("%w: resource name is empty", ErrScriptNotAvailable)
	}
	return &FromDisk{
		fs:        fs,
		path:      name,
		sourceURL: &url.URL{Scheme: schemeClasspath, Opaque: name},
	}, nil
}

func (l *FromDisk) String() string {
	noChkSum := fmt.Sprintf("loader.FromDisk{Path: %s}", l.path)
	reader, err := l.GetReader()
	if err != nil {
		return noChkSum
	}
	defer func() { _ = reader.Close() }()

	chksum, err := helpers.SHA256Reader(reader)
	if err != nil {
		return noChkSum
	}
	return fmt.Sprintf("loader.FromDisk{Path: %s, SHA256: %s}", l.path, chksum[:8])
}

func (l *FromDisk) GetReader() (io.ReadCloser, error) {
	return l.fs.Open(l.path)
}

// GetSourceURL returns the source URL of the script.
func (l *FromDisk) GetSourceURL() *url.URL {
	return l.sourceURL
}

// Path is the path of the script inside its filesystem.
func (l *FromDisk) Path() string {
	return l.path
}

// OnDisk reports whether the script is a regular file path, as opposed to a bundled resource.
func (l *FromDisk) OnDisk() bool {
	return l.sourceURL.Scheme == schemeFile
}
