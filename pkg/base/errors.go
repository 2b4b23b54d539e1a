package base

import "errors"

// Sentinel errors surfaced to callers. Wrapped with fmt.Errorf("%w", ...)
// where additional context helps diagnosis; callers should compare with
// errors.Is.
var (
	// ErrInstanceClosed is returned by every public operation once Close
	// or DeleteStream has completed.
	ErrInstanceClosed = errors.New("base: instance closed")

	// ErrProjectionMissing means a put's barrier wait returned but the
	// local store still doesn't have the key. It indicates the projector
	// faulted between applying the event and this read.
	ErrProjectionMissing = errors.New("base: projection missing after barrier wait")

	// ErrLogUnavailable wraps any failure talking to the log (publish,
	// consume, purge, delete).
	ErrLogUnavailable = errors.New("base: log unavailable")

	// ErrBadPredicate means a query or subscribe predicate used an
	// unknown operator or malformed condition.
	ErrBadPredicate = errors.New("base: bad predicate")
)
