package coordinator

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// waiterEnqueue appends w to the tail of the FIFO waiter queue.
func (c *Coordinator[MSG, REPLY]) waiterEnqueue(w waiter[MSG, REPLY]) {
	c.waiters = append(c.waiters, w)
}

// waiterDequeue removes and returns the head of the waiter queue.
func (c *Coordinator[MSG, REPLY]) waiterDequeue() (waiter[MSG, REPLY], bool) {
	if len(c.waiters) == 0 {
		return waiter[MSG, REPLY]{}, false
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	return w, true
}

// waiterRemoveByRef filters clientRef out of the waiter queue, reporting the
// removed entry if found. Used by Cancel (E3).
func (c *Coordinator[MSG, REPLY]) waiterRemoveByRef(clientRef poolcore.CancelToken) (waiter[MSG, REPLY], bool) {
	for i, w := range c.waiters {
		if w.clientRef == clientRef {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return w, true
		}
	}
	return waiter[MSG, REPLY]{}, false
}

// waiterRemoveByLiveness filters livenessToken out of the waiter queue. Used
// by ClientDown (E4).
func (c *Coordinator[MSG, REPLY]) waiterRemoveByLiveness(livenessToken poolcore.MonitorToken) (waiter[MSG, REPLY], bool) {
	for i, w := range c.waiters {
		if w.livenessToken == livenessToken {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return w, true
		}
	}
	return waiter[MSG, REPLY]{}, false
}
