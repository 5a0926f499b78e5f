package runner

import "errors"

// ErrExecution wraps every failure to resolve, compile or run a script.
var ErrExecution = errors.New("script execution failed")
