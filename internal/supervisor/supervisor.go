package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
)

// tracked is the bookkeeping the supervisor keeps per live worker, separate
// from poolcore.Handle itself so that poolcore stays free of supervisor
// concerns.
type tracked[MSG any, REPLY any] struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// InProcess is the default poolcore.Supervisor: every worker runs as a
// goroutine in the same process, fed through its Handle's private inbox.
// Concurrent spawns are throttled by a semaphore so a burst of checkouts
// against an empty pool cannot start an unbounded number of expensive
// factory calls at once.
type InProcess[MSG any, REPLY any] struct {
	factory  poolcore.Factory[MSG, REPLY]
	spawnSem *semaphore.Weighted
	exits    chan *poolcore.Handle[MSG, REPLY]
	log      *logrus.Entry

	mu      sync.Mutex
	workers map[*poolcore.Handle[MSG, REPLY]]*tracked[MSG, REPLY]
}

// New builds an InProcess supervisor. spawnConcurrency bounds how many
// factory calls may be in flight at once; it does not bound the number of
// live workers, which is the coordinator's job.
func New[MSG any, REPLY any](factory poolcore.Factory[MSG, REPLY], spawnConcurrency int64, log *logrus.Entry) *InProcess[MSG, REPLY] {
	if spawnConcurrency < 1 {
		spawnConcurrency = 1
	}
	return &InProcess[MSG, REPLY]{
		factory:  factory,
		spawnSem: semaphore.NewWeighted(spawnConcurrency),
		exits:    make(chan *poolcore.Handle[MSG, REPLY], 16),
		log:      log,
		workers:  make(map[*poolcore.Handle[MSG, REPLY]]*tracked[MSG, REPLY]),
	}
}

// Spawn acquires a spawn slot, builds the worker via the factory, and starts
// its goroutine. The semaphore slot is released as soon as the factory call
// returns; it does not hold for the worker's whole lifetime.
func (s *InProcess[MSG, REPLY]) Spawn(ctx context.Context) (*poolcore.Handle[MSG, REPLY], error) {
	if err := s.spawnSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", poolcore.ErrSpawnFailed, err)
	}

	w, err := s.factory(ctx)
	s.spawnSem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", poolcore.ErrSpawnFailed, err)
	}

	h := poolcore.NewHandle[MSG, REPLY]()
	workerCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.workers[h] = &tracked[MSG, REPLY]{cancel: cancel, done: make(chan struct{})}
	s.mu.Unlock()

	go s.run(workerCtx, h, w)

	return h, nil
}

// run is the body of one worker's goroutine: pull dispatches off the
// handle's inbox until the worker's context is cancelled, feeding each to
// the worker and forwarding its reply.
func (s *InProcess[MSG, REPLY]) run(ctx context.Context, h *poolcore.Handle[MSG, REPLY], w poolcore.Worker[MSG, REPLY]) {
	defer s.finish(h)
	defer s.recoverPanic(h)

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-h.Recv():
			result, err := w.Handle(ctx, d.Msg)
			d.Reply(result, err)
		}
	}
}

// recoverPanic turns a panicking worker into a logged crash rather than a
// dead process. It runs before finish (deferred after it, so it executes
// first) so a recovered panic still produces an exit notification unless the
// worker had already been dismissed.
func (s *InProcess[MSG, REPLY]) recoverPanic(h *poolcore.Handle[MSG, REPLY]) {
	if r := recover(); r != nil {
		if s.log != nil {
			s.log.WithField("worker", h.ID).Errorf("worker panicked: %v", r)
		}
	}
}

// finish marks the worker's slot as closed and, unless the worker was
// deliberately dismissed, reports it on the exits channel.
func (s *InProcess[MSG, REPLY]) finish(h *poolcore.Handle[MSG, REPLY]) {
	s.mu.Lock()
	t, ok := s.workers[h]
	if ok {
		delete(s.workers, h)
	}
	s.mu.Unlock()

	if ok {
		close(t.done)
	}

	if !h.Dismissed() {
		s.exits <- h
	}
}

// Terminate dismisses a worker: its handle is marked dismissed before its
// context is cancelled, so its exit produces no notification on Exits.
func (s *InProcess[MSG, REPLY]) Terminate(h *poolcore.Handle[MSG, REPLY]) {
	h.MarkDismissed()

	s.mu.Lock()
	t, ok := s.workers[h]
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Exits delivers a handle whenever its worker goroutine returns without
// having been dismissed first.
func (s *InProcess[MSG, REPLY]) Exits() <-chan *poolcore.Handle[MSG, REPLY] {
	return s.exits
}

// Shutdown terminates every worker still tracked and waits, concurrently,
// for each to confirm it has exited or for ctx to expire.
func (s *InProcess[MSG, REPLY]) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	entries := make(map[*poolcore.Handle[MSG, REPLY]]*tracked[MSG, REPLY], len(s.workers))
	for h, t := range s.workers {
		entries[h] = t
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for h, t := range entries {
		h, t := h, t
		g.Go(func() error {
			s.Terminate(h)
			select {
			case <-t.done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}
