package coordinator

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// monitorAdd registers W as busy on behalf of the given client, keyed
// uniformly by worker handle (by design) and indexed by
// both tokens for O(1) lookups from Cancel/ClientDown. watchStop is stored
// so monitorRemoveByHandle can retire the holder watch started for this
// monitor, if any; pass nil when no watch was started (work requests never
// start one, since the blocking call itself remains the liveness signal
// for the whole of its own duration).
func (c *Coordinator[MSG, REPLY]) monitorAdd(h *poolcore.Handle[MSG, REPLY], clientRef poolcore.CancelToken, livenessToken poolcore.MonitorToken, watchStop chan struct{}) {
	c.monitors[h] = monitorEntry{clientRef: clientRef, livenessToken: livenessToken, watchStop: watchStop}
	c.monitorByRef[clientRef] = h
	c.monitorByLiveness[livenessToken] = h
}

// monitorRemoveByHandle tears down the monitor for h, if any, returning it.
// Closing watchStop retires the corresponding holder-watch goroutine, if
// one was started.
func (c *Coordinator[MSG, REPLY]) monitorRemoveByHandle(h *poolcore.Handle[MSG, REPLY]) (monitorEntry, bool) {
	entry, ok := c.monitors[h]
	if !ok {
		return monitorEntry{}, false
	}
	delete(c.monitors, h)
	delete(c.monitorByRef, entry.clientRef)
	delete(c.monitorByLiveness, entry.livenessToken)
	if entry.watchStop != nil {
		close(entry.watchStop)
	}
	return entry, true
}

// monitorLookupByRef finds the worker monitoring clientRef, if any.
func (c *Coordinator[MSG, REPLY]) monitorLookupByRef(clientRef poolcore.CancelToken) (*poolcore.Handle[MSG, REPLY], bool) {
	h, ok := c.monitorByRef[clientRef]
	return h, ok
}

// monitorLookupByLiveness finds the worker monitoring livenessToken, if any.
func (c *Coordinator[MSG, REPLY]) monitorLookupByLiveness(livenessToken poolcore.MonitorToken) (*poolcore.Handle[MSG, REPLY], bool) {
	h, ok := c.monitorByLiveness[livenessToken]
	return h, ok
}
