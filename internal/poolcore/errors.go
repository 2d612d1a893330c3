package poolcore

import "errors"

var (
	// ErrFull is returned by a non-blocking checkout/work call when the pool
	// has no idle worker, no overflow slot, and the caller did not ask to
	// wait.
	ErrFull = errors.New("poolkeeper: pool is full")

	// ErrPoolStopped is returned by any call made after Stop has been
	// invoked, and to any waiter still queued when Stop runs.
	ErrPoolStopped = errors.New("poolkeeper: pool is stopped")

	// ErrInvalidMessage is part of the coordinator's error taxonomy for a
	// message shape the coordinator itself refuses to dispatch. The
	// generic, compile-time-typed event channel this coordinator dispatches
	// through means every MSG value reaching a worker is already
	// well-formed by construction, so no code path in this package
	// currently produces this error; it is kept so callers matching on the
	// full sentinel set compile against a stable error surface.
	ErrInvalidMessage = errors.New("poolkeeper: invalid message")

	// ErrTimeout is the result the coordinator delivers to a queued waiter
	// that it removes on cancellation or client-down. A blocking Checkout or
	// Work call whose context expires returns the context's own error
	// (context.DeadlineExceeded or context.Canceled), not ErrTimeout.
	ErrTimeout = errors.New("poolkeeper: timed out waiting for a worker")

	// ErrSpawnFailed is returned when the supervisor cannot start a worker.
	// Per the spawn-failure procedure this is always fatal: the coordinator
	// logs it and begins an orderly shutdown rather than continuing in a
	// degraded state.
	ErrSpawnFailed = errors.New("poolkeeper: worker spawn failed")
)
