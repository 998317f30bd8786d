package supervisor

import "errors"

// Precondition violations. Reported to callers as structured non-success
// results, never logged as errors and never fatal.
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrAlreadyOffline = errors.New("server is already offline")
	ErrShutDown       = errors.New("supervisor has shut down")
)
