// Package coordinator implements the single serialization point of a worker
// pool: one goroutine owns the idle-worker container, the waiter queue, and
// the monitor table, and processes one event at a time from all of them.
//
// Every public method on Coordinator builds an event and sends it to the
// coordinator's inbox; all except the fire-and-forget Checkin then wait on a
// one-shot reply channel embedded in the event. No lock is held across a blocking wait; the inbox channel is the
// only synchronization point.
package coordinator
