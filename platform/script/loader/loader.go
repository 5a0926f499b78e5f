// Package loader locates script sources and hands them to the interpreter as readers.
package loader

import (
	"fmt"
	"io"
	"net/url"
)

// Loader is an interface used by the engines to load scripts or binaries.
type Loader interface {
	GetReader() (io.ReadCloser, error)
	GetSourceURL() *url.URL
}

// ReadAll reads the full content of a loader.
func ReadAll(l Loader) ([]byte, error) {
	r, err := l.GetReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptNotAvailable, err)
	}
	defer func() { _ = r.Close() }()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.GetSourceURL(), err)
	}
	return content, nil
}
