package config

import "errors"

var (
	ErrRead    = errors.New("unable to read config file")
	ErrParse   = errors.New("unable to parse config file")
	ErrInvalid = errors.New("invalid config file")
	ErrEnvFile = errors.New("unable to load env file")
)
