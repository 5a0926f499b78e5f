package loader

import "errors"

var (
	ErrSchemeUnsupported  = errors.New("unsupported scheme")
	ErrScriptNotAvailable = errors.New("script not available")
	ErrBlankLocation      = errors.New("script location is blank")
	ErrUnknownPathKind    = errors.New("unknown path kind")
)
