package agent

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by calls made while no socket is open.
var ErrNotConnected = errors.New("agent: not connected")

// LoadError means the agent client could not be made available.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("agent: failed to load client: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConnectionError means the socket to the agent could not be opened.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("agent: connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
