package backend

import (
	"errors"
	"fmt"
)

// ErrUnknownBackend is returned by Registry.Lookup for unregistered names.
var ErrUnknownBackend = errors.New("unknown backend")

// ConfigurationError reports a missing or unusable execution parameter for
// which no default applies. It is raised before any resource is allocated.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Param, e.Reason)
}

// MaterializationError reports a play that could not be serialized to the
// engine's document format. The engine is never invoked when it occurs.
type MaterializationError struct {
	Index int
	Err   error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize play %d: %v", e.Index, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }
