package loader

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// PathKind selects how a Location is resolved.
type PathKind string

const (
	// KindAbsolute resolves the location as a filesystem path. An empty kind means absolute.
	KindAbsolute PathKind = "absolute"
	// KindRelative resolves the location against the resolver's base directory.
	KindRelative PathKind = "relative"
	// KindClasspath looks the location up in bundled resources, then along the search path.
	KindClasspath PathKind = "classpath"
)

// UnmarshalText accepts the kind in any casing, with or without a "_path"/"_resource" suffix.
func (k *PathKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	v = strings.TrimSuffix(strings.TrimSuffix(v, "_path"), "_resource")
	switch PathKind(v) {
	case "", KindAbsolute:
		*k = KindAbsolute
	case KindRelative:
		*k = KindRelative
	case KindClasspath:
		*k = KindClasspath
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPathKind, string(text))
	}
	return nil
}

// Location identifies a script source.
type Location struct {
	Kind PathKind `yaml:"pathKind"`
	Path string   `yaml:"location" validate:"required"`
}

// Absolute returns a location for a filesystem path.
func Absolute(path string) Location {
	return Location{Kind: KindAbsolute, Path: path}
}

// Relative returns a location resolved against the base directory.
func Relative(path string) Location {
	return Location{Kind: KindRelative, Path: path}
}

// Classpath returns a location for a bundled resource or a file on the search path.
func Classpath(name string) Location {
	return Location{Kind: KindClasspath, Path: name}
}

// EffectiveKind returns the kind used for resolution.
func (l Location) EffectiveKind() PathKind {
	if l.Kind == "" {
		return KindAbsolute
	}
	return l.Kind
}

// IsBlank reports whether the path is empty or whitespace.
func (l Location) IsBlank() bool {
	return strings.TrimSpace(l.Path) == ""
}

func (l Location) String() string {
	if l.EffectiveKind() == KindClasspath {
		return "classpath:" + l.Path
	}
	return l.Path
}

// ParseLocation infers a Location from a string:
//   - "classpath:name" is a classpath resource
//   - "file:///abs/path" and "/abs/path" are absolute paths
//   - anything else is relative
func ParseLocation(input string) (Location, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Location{}, ErrBlankLocation
	}

	if name, ok := strings.CutPrefix(input, "classpath:"); ok {
		if strings.TrimSpace(name) == "" {
			return Location{}, ErrBlankLocation
		}
		return Classpath(name), nil
	}

	if strings.Contains(input, "://") {
		parsed, err := url.Parse(input)
		if err != nil {
			return Location{}, fmt.Errorf("unable to parse location %q: %w", input, err)
		}
		if parsed.Scheme != schemeFile {
			return Location{}, fmt.Errorf("%w: %s", ErrSchemeUnsupported, parsed.Scheme)
		}
		return Absolute(parsed.Path), nil
	}

	if filepath.IsAbs(input) {
		return Absolute(input), nil
	}
	return Relative(input), nil
}
