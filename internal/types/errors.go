package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrRunInProgress = errors.New("a scrape run is already in progress")
	ErrPickCancelled = errors.New("element pick cancelled")
	ErrNoDocument    = errors.New("no document loaded")
	ErrNoNextTarget  = errors.New("next control has no navigable target")
	ErrEmptySelector = errors.New("empty selector")
)

// SelectorError wraps a selector that could not be compiled or evaluated.
// Core callers treat it as "no match".
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// FetchError wraps errors that occur while loading or navigating a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExportTransportError wraps a failure of one export transport.
type ExportTransportError struct {
	Transport string
	Err       error
}

func (e *ExportTransportError) Error() string {
	return fmt.Sprintf("export transport %s: %v", e.Transport, e.Err)
}

func (e *ExportTransportError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a record sink.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
