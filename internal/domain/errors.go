package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable means the named channel could not be resolved.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidChannel means a channel name cannot be used as a storage
	// path segment.
	ErrInvalidChannel = errors.New("invalid channel name")
	// ErrMalformedBatch means a raw payload could not be parsed at all.
	ErrMalformedBatch = errors.New("malformed batch")
	// ErrUnresolvedKey means a staging row has no matching dimension row.
	ErrUnresolvedKey = errors.New("unresolved dimension key")
	// ErrStorageUnavailable means the warehouse could not be reached. It is
	// the only failure that aborts a whole run.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RateLimitError is returned by a source that has been throttled and told
// how long to wait before the next request.
type RateLimitError struct {
	Channel string
	Wait    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s: retry after %s", e.Channel, e.Wait)
}

// MalformedBatchError ties a parse failure to the batch it came from.
type MalformedBatchError struct {
	Provenance string
	Err        error
}

func (e *MalformedBatchError) Error() string {
	return fmt.Sprintf("malformed batch %s: %v", e.Provenance, e.Err)
}

func (e *MalformedBatchError) Unwrap() []error { return []error{ErrMalformedBatch, e.Err} }
