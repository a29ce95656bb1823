package snapshot

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a capture ID is unknown.
var ErrNotFound = errors.New("capture not found")

// ErrCaptureDisabled is returned when a capture is requested while the
// feature is switched off in configuration.
var ErrCaptureDisabled = errors.New("page capture disabled")

// ErrInvalidURL is returned when a submitted URL fails validation.
var ErrInvalidURL = errors.New("invalid url")

// ErrQueueFull is returned by bounded queues instead of blocking the
// submitter.
var ErrQueueFull = errors.New("capture queue full")

// ErrQueueClosed is returned once a queue has been shut down and
// drained.
var ErrQueueClosed = errors.New("capture queue closed")

// FailureKind classifies why a fetch failed.
type FailureKind string

// Fetch failure kinds. Status covers any non-2xx response.
const (
	FailureTimeout FailureKind = "timeout"
	FailureConnect FailureKind = "connect"
	FailureStatus  FailureKind = "status"
	FailureBody    FailureKind = "body"
)

// FetchError wraps a failed fetch with enough context for callers to
// decide whether the page or only a resource is lost.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FailureStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the failure kind from err, or FailureConnect
// when err is not a FetchError.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureConnect
}
