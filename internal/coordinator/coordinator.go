package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
)

// send delivers ev to the loop goroutine unless the coordinator has already
// stopped, in which case it reports failure instead of blocking forever on
// a channel nobody is reading anymore.
func (c *Coordinator[MSG, REPLY]) send(ev event[MSG, REPLY]) bool {
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Checkout hands out an idle worker, spawning an overflow worker or
// enqueueing as a waiter as needed. block=false returns ErrFull
// immediately instead of waiting.
func (c *Coordinator[MSG, REPLY]) Checkout(ctx context.Context, block bool) (*poolcore.Handle[MSG, REPLY], error) {
	replyCh := make(chan checkoutResult[MSG, REPLY], 1)
	ev := event[MSG, REPLY]{
		kind:          evCheckoutReq,
		clientRef:     poolcore.NewToken(),
		livenessToken: poolcore.NewToken(),
		block:         block,
		checkoutReply: replyCh,
		ctx:           ctx,
	}
	if !c.send(ev) {
		return nil, poolcore.ErrPoolStopped
	}
	select {
	case res := <-replyCh:
		return res.handle, res.err
	case <-ctx.Done():
		c.send(event[MSG, REPLY]{kind: evCancel, clientRef: ev.clientRef})
		return nil, ctx.Err()
	}
}

// Work submits msg to an assigned worker and returns its reply directly,
// auto-checking the worker back in once the worker replies.
func (c *Coordinator[MSG, REPLY]) Work(ctx context.Context, msg MSG, block bool) (REPLY, error) {
	replyCh := make(chan workResult[REPLY], 1)
	ev := event[MSG, REPLY]{
		kind:          evWorkReq,
		clientRef:     poolcore.NewToken(),
		livenessToken: poolcore.NewToken(),
		block:         block,
		msg:           msg,
		workReply:     replyCh,
		ctx:           ctx,
	}
	if !c.send(ev) {
		var zero REPLY
		return zero, poolcore.ErrPoolStopped
	}
	select {
	case res := <-replyCh:
		return res.reply, res.err
	case <-ctx.Done():
		c.send(event[MSG, REPLY]{kind: evCancel, clientRef: ev.clientRef})
		var zero REPLY
		return zero, ctx.Err()
	}
}

// Checkin is fire-and-forget: a checkin for an unknown or already-idle
// worker is a silent no-op.
func (c *Coordinator[MSG, REPLY]) Checkin(h *poolcore.Handle[MSG, REPLY]) {
	c.send(event[MSG, REPLY]{kind: evCheckin, worker: h})
}

// Transaction checks a worker out, runs fn against it, and guarantees
// checkin on every exit path including a panic or error from fn.
func (c *Coordinator[MSG, REPLY]) Transaction(ctx context.Context, timeout time.Duration, fn func(*poolcore.Handle[MSG, REPLY]) error) error {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h, err := c.Checkout(cctx, true)
	if err != nil {
		return err
	}
	defer c.Checkin(h)

	return fn(h)
}

// Status reports the derived state and population counts,
// serialized through the same event loop as every other call.
func (c *Coordinator[MSG, REPLY]) Status() Status {
	replyCh := make(chan Status, 1)
	if !c.send(event[MSG, REPLY]{kind: evStatusQuery, statusReply: replyCh}) {
		return Status{Stopped: true}
	}
	return <-replyCh
}

// Stop gracefully shuts the pool down: waiters fail with ErrPoolStopped,
// every tracked worker is terminated, and the loop goroutine exits.
func (c *Coordinator[MSG, REPLY]) Stop(ctx context.Context) error {
	replyCh := make(chan struct{})
	select {
	case c.inbox <- event[MSG, REPLY]{kind: evStop, stopReply: replyCh, ctx: ctx}:
	case <-c.done:
		return nil
	}
	select {
	case <-replyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the coordinator's single serialization point: exactly one event
// is handled at a time, to completion, before the next is read.
func (c *Coordinator[MSG, REPLY]) loop() {
	defer close(c.done)

	for {
		select {
		case ev := <-c.inbox:
			c.generation++
			if c.metrics != nil {
				c.metrics.countEvent(ev.kind)
			}
			c.dispatch(ev)
		case h := <-c.supervisor.Exits():
			c.generation++
			if c.metrics != nil {
				c.metrics.countEvent(evWorkerExit)
			}
			c.handleWorkerExit(h)
		}

		if c.metrics != nil {
			c.metrics.observe(c.status())
		}
		if c.stopped {
			return
		}
	}
}

func (c *Coordinator[MSG, REPLY]) dispatch(ev event[MSG, REPLY]) {
	switch ev.kind {
	case evCheckoutReq, evWorkReq:
		c.handleRequest(ev)
	case evCheckin:
		c.handleCheckin(ev.worker)
	case evCancel:
		c.handleCancel(ev.clientRef)
	case evClientDown:
		c.handleClientDown(ev.livenessToken)
	case evStatusQuery:
		ev.statusReply <- c.status()
	case evStop:
		c.handleStop(ev)
	}
}

// handleRequest implements E1: checkout or work, depending on ev.kind.
func (c *Coordinator[MSG, REPLY]) handleRequest(ev event[MSG, REPLY]) {
	if h, ok := c.idlePopFront(); ok {
		c.assign(h, ev)
		return
	}

	if c.overflow < c.maxOverflow {
		h, err := c.supervisor.Spawn(context.Background())
		if err != nil {
			c.failRequest(ev, fmt.Errorf("%w", poolcore.ErrSpawnFailed))
			c.triggerFatal(err)
			return
		}
		c.overflow++
		if c.log != nil {
			c.log.WithField("pool", c.name).WithField("overflow", c.overflow).Debug("spawned overflow worker")
		}
		c.assign(h, ev)
		return
	}

	if !ev.block {
		c.failRequest(ev, poolcore.ErrFull)
		return
	}

	c.waiterEnqueue(waiter[MSG, REPLY]{
		clientRef:     ev.clientRef,
		livenessToken: ev.livenessToken,
		isWork:        ev.kind == evWorkReq,
		msg:           ev.msg,
		checkoutReply: ev.checkoutReply,
		workReply:     ev.workReply,
		ctx:           ev.ctx,
	})
}

// assign attaches a monitor for h on ev's caller, then either replies with
// the handle (checkout) or dispatches the message (work). A checkout's
// monitor gets a holder watch (see startHolderWatch); a work request's
// does not, since the blocking Work call already watches its own context
// for the call's whole duration.
func (c *Coordinator[MSG, REPLY]) assign(h *poolcore.Handle[MSG, REPLY], ev event[MSG, REPLY]) {
	var stop chan struct{}
	if ev.kind != evWorkReq {
		stop = make(chan struct{})
	}
	c.monitorAdd(h, ev.clientRef, ev.livenessToken, stop)
	if stop != nil {
		c.startHolderWatch(ev.ctx, ev.livenessToken, stop)
	}

	if ev.kind == evWorkReq {
		c.dispatchWork(h, ev.msg, ev.workReply)
		return
	}
	ev.checkoutReply <- checkoutResult[MSG, REPLY]{handle: h}
}

// startHolderWatch raises evClientDown once ctx is done, covering a client
// that dies, panics, or simply abandons a worker obtained from Checkout
// after the call has already returned the handle — the one case E3's
// in-flight ctx.Done() handling in Checkout/Work cannot reach, since by
// then the client's call has already exited its own select. stop retires
// the watch without waiting for ctx when the worker is checked back in
// normally. A context carrying a deadline (the common case for any call a
// caller intends to bound) is enough for this to fire even if the holder's
// own goroutine has stopped running entirely.
func (c *Coordinator[MSG, REPLY]) startHolderWatch(ctx context.Context, livenessToken poolcore.MonitorToken, stop chan struct{}) {
	if ctx == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			c.send(event[MSG, REPLY]{kind: evClientDown, livenessToken: livenessToken})
		case <-stop:
		}
	}()
}

// stopAllHolderWatches retires every outstanding holder-watch goroutine at
// shutdown. Once the loop stops reading evClientDown, a watch left running
// would block on its ctx forever for any holder whose context carries no
// deadline, so both shutdown paths must close every watchStop before the
// loop exits rather than leaving that to a later event that will never
// arrive.
func (c *Coordinator[MSG, REPLY]) stopAllHolderWatches() {
	for _, entry := range c.monitors {
		if entry.watchStop != nil {
			close(entry.watchStop)
		}
	}
}

// dispatchWork sends msg to h's private inbox with a Reply closure that
// forwards the result to the client and casts a checkin back to the
// coordinator.
func (c *Coordinator[MSG, REPLY]) dispatchWork(h *poolcore.Handle[MSG, REPLY], msg MSG, replyTo chan workResult[REPLY]) {
	h.Send(poolcore.Dispatch[MSG, REPLY]{
		Msg: msg,
		Reply: func(r REPLY, err error) {
			replyTo <- workResult[REPLY]{reply: r, err: err}
			c.send(event[MSG, REPLY]{kind: evCheckin, worker: h})
		},
	})
}

// failRequest replies to a request event immediately without consuming any
// capacity, used for the non-blocking FULL case and for fatal spawn
// failures.
func (c *Coordinator[MSG, REPLY]) failRequest(ev event[MSG, REPLY], err error) {
	if ev.kind == evWorkReq {
		var zero REPLY
		ev.workReply <- workResult[REPLY]{reply: zero, err: err}
		return
	}
	ev.checkoutReply <- checkoutResult[MSG, REPLY]{err: err}
}

// handleCheckin implements E2.
func (c *Coordinator[MSG, REPLY]) handleCheckin(h *poolcore.Handle[MSG, REPLY]) {
	if h == nil {
		return
	}
	if _, ok := c.monitorRemoveByHandle(h); !ok {
		return
	}
	c.reassign(h)
}

// reassign implements the reassignment procedure for a newly freed
// worker W.
func (c *Coordinator[MSG, REPLY]) reassign(w *poolcore.Handle[MSG, REPLY]) {
	if wtr, ok := c.waiterDequeue(); ok {
		var stop chan struct{}
		if !wtr.isWork {
			stop = make(chan struct{})
		}
		c.monitorAdd(w, wtr.clientRef, wtr.livenessToken, stop)
		if stop != nil {
			c.startHolderWatch(wtr.ctx, wtr.livenessToken, stop)
		}
		if wtr.isWork {
			c.dispatchWork(w, wtr.msg, wtr.workReply)
		} else {
			wtr.checkoutReply <- checkoutResult[MSG, REPLY]{handle: w}
		}
		return
	}

	if c.overflow > 0 {
		c.supervisor.Terminate(w)
		c.overflow--
		if c.log != nil {
			c.log.WithField("pool", c.name).WithField("overflow", c.overflow).Debug("dismissed overflow worker")
		}
		return
	}

	if c.strategy == poolcore.FIFO {
		c.idlePushBack(w)
	} else {
		c.idlePushFront(w)
	}
}

// handleCancel implements E3.
func (c *Coordinator[MSG, REPLY]) handleCancel(clientRef poolcore.CancelToken) {
	if h, ok := c.monitorLookupByRef(clientRef); ok {
		c.handleCheckin(h)
		return
	}
	if wtr, ok := c.waiterRemoveByRef(clientRef); ok {
		c.failWaiter(wtr, poolcore.ErrTimeout)
	}
}

// handleClientDown implements E4.
func (c *Coordinator[MSG, REPLY]) handleClientDown(livenessToken poolcore.MonitorToken) {
	if h, ok := c.monitorLookupByLiveness(livenessToken); ok {
		c.handleCheckin(h)
		return
	}
	if wtr, ok := c.waiterRemoveByLiveness(livenessToken); ok {
		c.failWaiter(wtr, poolcore.ErrTimeout)
	}
}

func (c *Coordinator[MSG, REPLY]) failWaiter(wtr waiter[MSG, REPLY], err error) {
	if wtr.isWork {
		var zero REPLY
		wtr.workReply <- workResult[REPLY]{reply: zero, err: err}
		return
	}
	wtr.checkoutReply <- checkoutResult[MSG, REPLY]{err: err}
}

// handleWorkerExit implements E5.
func (c *Coordinator[MSG, REPLY]) handleWorkerExit(h *poolcore.Handle[MSG, REPLY]) {
	if _, ok := c.monitorRemoveByHandle(h); ok {
		c.crashProcedure()
		return
	}
	if c.idleRemove(h) {
		n, err := c.supervisor.Spawn(context.Background())
		if err != nil {
			c.triggerFatal(err)
			return
		}
		c.idlePushFront(n)
		if c.log != nil {
			c.log.WithField("pool", c.name).Warn("replaced idle worker that exited unexpectedly")
		}
		return
	}
	// Late or duplicate notification for a worker already gone from both
	// idle and monitors: ignore.
}

// crashProcedure implements the worker-crash procedure for a busy
// worker that has just been removed from monitors.
func (c *Coordinator[MSG, REPLY]) crashProcedure() {
	if c.log != nil {
		c.log.WithField("pool", c.name).Warn("busy worker crashed")
	}

	if wtr, ok := c.waiterDequeue(); ok {
		n, err := c.supervisor.Spawn(context.Background())
		if err != nil {
			c.failWaiter(wtr, poolcore.ErrSpawnFailed)
			c.triggerFatal(err)
			return
		}
		var stop chan struct{}
		if !wtr.isWork {
			stop = make(chan struct{})
		}
		c.monitorAdd(n, wtr.clientRef, wtr.livenessToken, stop)
		if stop != nil {
			c.startHolderWatch(wtr.ctx, wtr.livenessToken, stop)
		}
		if wtr.isWork {
			c.dispatchWork(n, wtr.msg, wtr.workReply)
		} else {
			wtr.checkoutReply <- checkoutResult[MSG, REPLY]{handle: n}
		}
		return
	}

	if c.overflow > 0 {
		c.overflow--
		if c.log != nil {
			c.log.WithField("pool", c.name).WithField("overflow", c.overflow).Debug("overflow worker crashed, not replaced")
		}
		return
	}

	n, err := c.supervisor.Spawn(context.Background())
	if err != nil {
		c.triggerFatal(err)
		return
	}
	c.idlePushBack(n)
}

// triggerFatal fails every queued waiter, terminates every remaining
// worker, and stops the loop. Idempotent.
func (c *Coordinator[MSG, REPLY]) triggerFatal(cause error) {
	if c.stopped {
		return
	}
	c.stopped = true

	if c.log != nil {
		c.log.WithField("pool", c.name).WithError(cause).Error("coordinator stopping after spawn failure")
	}

	for _, wtr := range c.waiters {
		c.failWaiter(wtr, poolcore.ErrSpawnFailed)
	}
	c.waiters = nil
	c.stopAllHolderWatches()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.supervisor.Shutdown(ctx)
}

// handleStop implements the graceful-shutdown half of evStop.
func (c *Coordinator[MSG, REPLY]) handleStop(ev event[MSG, REPLY]) {
	if c.stopped {
		close(ev.stopReply)
		return
	}
	c.stopped = true

	for _, wtr := range c.waiters {
		c.failWaiter(wtr, poolcore.ErrPoolStopped)
	}
	c.waiters = nil
	c.idle = nil
	c.stopAllHolderWatches()

	shutdownCtx := ev.ctx
	if shutdownCtx == nil {
		shutdownCtx = context.Background()
	}
	if err := c.supervisor.Shutdown(shutdownCtx); err != nil && c.log != nil {
		c.log.WithField("pool", c.name).WithError(err).Warn("supervisor shutdown did not complete cleanly")
	}

	close(ev.stopReply)
}
