package service

import "errors"

var (
	ErrNotInitialized = errors.New("service is not initialized")
	ErrUnknownPhase   = errors.New("unknown script phase")
	ErrNilManager     = errors.New("manager is nil")
)
