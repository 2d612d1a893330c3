package coordinator

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// Status is the observable 4-tuple plus the stopped flag needed
// so callers of Status() after Stop can distinguish "empty pool" from
// "pool is gone". Generation is the count of events the coordinator has
// processed as of this snapshot: two Status() calls with the same
// Generation observed no intervening activity, which is the only
// "freshness" guarantee this field is meant to provide.
type Status struct {
	State      poolcore.State
	Idle       int
	Overflow   int
	Busy       int
	Waiters    int
	Stopped    bool
	Generation uint64
}

// deriveState is the pure function of (idleCount, overflow, maxOverflow)
// specified by its defining table. It takes no Coordinator receiver so it can be
// table-tested in isolation from the event loop.
func deriveState(idleCount, overflow, maxOverflow int) poolcore.State {
	switch {
	case overflow >= 1 && overflow == maxOverflow:
		return poolcore.FULL
	case overflow >= 1:
		return poolcore.OVERFLOW
	case overflow == 0 && idleCount == 0 && maxOverflow == 0:
		return poolcore.FULL
	case overflow == 0 && idleCount == 0:
		return poolcore.OVERFLOW
	default:
		return poolcore.READY
	}
}

// status snapshots the coordinator's current counts. Must only be called
// from the loop goroutine.
func (c *Coordinator[MSG, REPLY]) status() Status {
	return Status{
		State:      deriveState(len(c.idle), c.overflow, c.maxOverflow),
		Idle:       len(c.idle),
		Overflow:   c.overflow,
		Busy:       len(c.monitors),
		Waiters:    len(c.waiters),
		Stopped:    c.stopped,
		Generation: c.generation,
	}
}
