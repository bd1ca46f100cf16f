package lead

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lead or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus is returned for an unknown workflow status.
	ErrInvalidStatus = errors.New("invalid workflow status")

	// ErrQueueFull is returned when no more browser runs can be accepted.
	ErrQueueFull = errors.New("browser run queue full")

	// ErrQueueClosed is returned once the browser run queue has shut down.
	ErrQueueClosed = errors.New("browser run queue closed")

	// ErrSearchInputNotFound aborts a browser run whose search box never appeared.
	ErrSearchInputNotFound = errors.New("search input not found")

	// ErrExtractionTimeout aborts a browser run whose results feed never rendered.
	ErrExtractionTimeout = errors.New("extraction timed out")

	// ErrStagnationExceeded marks a browser run that stopped because the feed
	// stopped growing. It is a normal termination, never returned as a failure.
	ErrStagnationExceeded = errors.New("scroll stagnation exceeded")
)

// PersistenceError wraps a failed write of a single lead.
type PersistenceError struct {
	ExternalID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist lead %s: %v", e.ExternalID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
