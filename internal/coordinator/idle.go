package coordinator

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// idlePopFront removes and returns the worker at the head of idle. Removal
// is always from the front regardless of strategy.
func (c *Coordinator[MSG, REPLY]) idlePopFront() (*poolcore.Handle[MSG, REPLY], bool) {
	if len(c.idle) == 0 {
		return nil, false
	}
	h := c.idle[0]
	c.idle = c.idle[1:]
	return h, true
}

// idlePushFront reinserts a freed worker at the head, used by LIFO
// reinsertion and by the worker-exit-while-idle replacement.
func (c *Coordinator[MSG, REPLY]) idlePushFront(h *poolcore.Handle[MSG, REPLY]) {
	c.idle = append([]*poolcore.Handle[MSG, REPLY]{h}, c.idle...)
}

// idlePushBack reinserts a freed worker at the tail, used by FIFO
// reinsertion and by prepopulation at startup.
func (c *Coordinator[MSG, REPLY]) idlePushBack(h *poolcore.Handle[MSG, REPLY]) {
	c.idle = append(c.idle, h)
}

// idleRemove drops h from idle if present, reporting whether it was found.
// Used when a worker the coordinator believed idle exits unexpectedly.
func (c *Coordinator[MSG, REPLY]) idleRemove(h *poolcore.Handle[MSG, REPLY]) bool {
	for i, w := range c.idle {
		if w == h {
			c.idle = append(c.idle[:i], c.idle[i+1:]...)
			return true
		}
	}
	return false
}
