package pool

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// Worker is the protocol a pool's workers implement: receive a message,
// produce a reply or an error.
type Worker[MSG any, REPLY any] = poolcore.Worker[MSG, REPLY]

// Factory produces a fresh Worker for the supervisor to spawn, the
// worker_module configuration option rendered as a Go function value.
type Factory[MSG any, REPLY any] = poolcore.Factory[MSG, REPLY]

// Handle identifies one checked-out worker. Callers hold a Handle only
// between Checkout and Checkin; using it afterward is undefined behavior on
// the caller's side but never corrupts pool state.
type Handle[MSG any, REPLY any] = poolcore.Handle[MSG, REPLY]

// Strategy selects the idle-worker reinsertion end on checkin.
type Strategy = poolcore.Strategy

const (
	LIFO = poolcore.LIFO
	FIFO = poolcore.FIFO
)

// State is the coarse status name derived from pool counts.
type State = poolcore.State

const (
	READY    = poolcore.READY
	OVERFLOW = poolcore.OVERFLOW
	FULL     = poolcore.FULL
)
