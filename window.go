// Package slidewin provides sliding-window views over in-memory, file, and
// relational data sources. A Window presents a contiguous run of W elements
// of type T, advances one element at a time, and reports when no further
// window remains. The file and SQL sources double-buffer their reads: while
// the consumer works through the current window, the supply fetches the
// next stretch of elements in the background (or on demand, depending on
// the configured launch policy).
package slidewin

import "errors"

// ErrSourceExhausted is returned by Current when no window is available and
// no outstanding or future fetch can produce one. Callers should check
// Exhausted before calling Current; seeing this error means they didn't.
var ErrSourceExhausted = errors.New("slidewin: source exhausted")

// ErrWindowTooLargeForRing is returned at construction time by
// NewRingSource when windowSize exceeds the length of the backing vector.
var ErrWindowTooLargeForRing = errors.New("slidewin: window size exceeds ring length")

// SupplyFailedError wraps an error raised by a supply's background fetch.
// Once returned, the source that produced it is terminally errored: every
// subsequent call returns the same error.
type SupplyFailedError struct {
	Cause error
}

func (e *SupplyFailedError) Error() string { return "slidewin: supply failed: " + e.Cause.Error() }
func (e *SupplyFailedError) Unwrap() error { return e.Cause }

// ConstructionFailedError wraps an error that occurred while opening a file
// or preparing a query at construction time.
type ConstructionFailedError struct {
	Cause error
}

func (e *ConstructionFailedError) Error() string {
	return "slidewin: construction failed: " + e.Cause.Error()
}
func (e *ConstructionFailedError) Unwrap() error { return e.Cause }

// Window is the contract every sliding-window source satisfies. It is
// deliberately single-goroutine per instance: the slice returned by
// Current is invalidated by the next call to Current or Advance.
type Window[T any] interface {
	// Current returns a contiguous view of exactly WindowSize elements.
	// On an async source this may block to complete a pending fetch.
	// Returns ErrSourceExhausted if no window is or will become available,
	// or a *SupplyFailedError if a background fetch failed.
	Current() ([]T, error)

	// Advance shifts the window start forward by one element. It may
	// trigger a background refill. There is no idempotence: each call is
	// a distinct step forward.
	Advance() error

	// Exhausted reports true when no further full window can be
	// produced from buffered data plus any outstanding fetch.
	Exhausted() bool

	// WindowSize returns W, constant for the life of the source.
	WindowSize() uint32

	// Close releases the source's resources (open file, prepared query,
	// in-flight fetch goroutine). It joins any outstanding background
	// fetch before returning and is safe to call more than once.
	Close() error
}
