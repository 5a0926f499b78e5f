package pipeline

import "errors"

var (
	ErrNilHandler = errors.New("pipeline handler is nil")
	ErrSetup      = errors.New("unable to set up pipeline")
)
