package poolcore

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// CancelToken identifies a single client request for cancellation purposes.
// It is handed to the coordinator with every checkout/work call and used to
// find and remove that call's monitor or waiter entry if the call is
// interrupted.
type CancelToken = uuid.UUID

// MonitorToken is the liveness handle for a checked-out worker: a second,
// independently-generated token carried alongside CancelToken so that
// liveness tracking and call cancellation remain distinct event kinds (E3
// vs E4) even though this implementation's client-side wiring happens to
// derive both from the same context.Context.
type MonitorToken = uuid.UUID

// NewToken mints a fresh, unique token.
func NewToken() uuid.UUID {
	return uuid.New()
}

// Strategy selects the reinsertion end for idle workers on checkin. Idle
// removal is always from the front regardless of Strategy; see the
// reassignment procedure in internal/coordinator.
type Strategy int

const (
	// LIFO reinserts a freed worker at the front, so it is the next one
	// handed out: the most recently checked-in worker stays warm.
	LIFO Strategy = iota
	// FIFO reinserts a freed worker at the back, rotating workers evenly.
	FIFO
)

func (s Strategy) String() string {
	if s == FIFO {
		return "FIFO"
	}
	return "LIFO"
}

// State is the coarse status name derived from pool counts.
type State int

const (
	READY State = iota
	OVERFLOW
	FULL
)

func (s State) String() string {
	switch s {
	case READY:
		return "READY"
	case OVERFLOW:
		return "OVERFLOW"
	case FULL:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// Dispatch bundles a message with its one-shot reply callback. Reply must be
// invoked at most once per Dispatch received by a worker.
type Dispatch[MSG any, REPLY any] struct {
	Msg   MSG
	Reply func(REPLY, error)
}

// Worker is the request/reply protocol a caller-supplied implementation
// fulfills: receive a message, produce a reply. Implementations do not
// need to know anything about checkout, overflow, or the waiter queue.
type Worker[MSG any, REPLY any] interface {
	Handle(ctx context.Context, msg MSG) (REPLY, error)
}

// Factory produces a fresh Worker for the supervisor to spawn.
type Factory[MSG any, REPLY any] func(ctx context.Context) (Worker[MSG, REPLY], error)

// Handle identifies one running worker. Two handles are the same worker iff
// they are the same pointer; this is deliberate, matching the handle-identity requirement
// that a worker handle appear in exactly one of idle/monitors/neither.
type Handle[MSG any, REPLY any] struct {
	ID uuid.UUID

	inbox     chan Dispatch[MSG, REPLY]
	dismissed atomic.Bool
}

// NewHandle allocates a handle with a private, single-slot inbox. Capacity 1
// is enough because a handle is only ever routed a second message after the
// first has been checked in.
func NewHandle[MSG any, REPLY any]() *Handle[MSG, REPLY] {
	return &Handle[MSG, REPLY]{
		ID:    uuid.New(),
		inbox: make(chan Dispatch[MSG, REPLY], 1),
	}
}

// Send delivers a dispatch to the worker's private inbox without blocking
// the caller beyond the inbox's buffer.
func (h *Handle[MSG, REPLY]) Send(d Dispatch[MSG, REPLY]) {
	h.inbox <- d
}

// Recv exposes the inbox for the supervisor's worker goroutine to consume.
func (h *Handle[MSG, REPLY]) Recv() <-chan Dispatch[MSG, REPLY] {
	return h.inbox
}

// MarkDismissed records that this handle's termination was requested by the
// coordinator (an intentional dismissal), so the supervisor must not raise a
// WorkerExit notification for it.
func (h *Handle[MSG, REPLY]) MarkDismissed() {
	h.dismissed.Store(true)
}

// Dismissed reports whether MarkDismissed was called.
func (h *Handle[MSG, REPLY]) Dismissed() bool {
	return h.dismissed.Load()
}

// Call sends msg directly to the worker this handle identifies and waits for
// its reply. This is the "use it directly" half of checkout: a client that
// has already checked out a worker need not go back through the coordinator
// to dispatch work to it.
func (h *Handle[MSG, REPLY]) Call(ctx context.Context, msg MSG) (REPLY, error) {
	type outcome struct {
		val REPLY
		err error
	}
	resultCh := make(chan outcome, 1)
	h.Send(Dispatch[MSG, REPLY]{
		Msg: msg,
		Reply: func(r REPLY, err error) {
			resultCh <- outcome{val: r, err: err}
		},
	})
	select {
	case out := <-resultCh:
		return out.val, out.err
	case <-ctx.Done():
		var zero REPLY
		return zero, ctx.Err()
	}
}

// Supervisor is the worker-supervisor contract: spawn a worker,
// terminate one on request, and asynchronously notify the coordinator when
// one dies unexpectedly.
type Supervisor[MSG any, REPLY any] interface {
	// Spawn starts a new worker and returns its handle. Spawn failures are
	// fatal to the coordinator.
	Spawn(ctx context.Context) (*Handle[MSG, REPLY], error)

	// Terminate dismisses a worker. The handle is marked dismissed first so
	// its exit produces no WorkerExit notification.
	Terminate(h *Handle[MSG, REPLY])

	// Exits delivers a handle whenever a worker dies without having been
	// deliberately terminated.
	Exits() <-chan *Handle[MSG, REPLY]

	// Shutdown terminates every worker the supervisor is still tracking and
	// waits for them to finish exiting.
	Shutdown(ctx context.Context) error
}
