package pool

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mvandermade/poolkeeper/internal/coordinator"
	"github.com/mvandermade/poolkeeper/internal/supervisor"
)

// Pool multiplexes a bounded set of long-lived workers among concurrent
// callers. A zero Pool is not usable; construct one with New.
type Pool[MSG any, REPLY any] struct {
	c *coordinator.Coordinator[MSG, REPLY]
}

// New spawns size workers from factory and returns a ready-to-use Pool.
// Spawn failure during prepopulation is fatal and is returned as an error
// wrapping ErrSpawnFailed.
func New[MSG any, REPLY any](factory Factory[MSG, REPLY], opts ...Option) (*Pool[MSG, REPLY], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("pool", cfg.name)

	reg := cfg.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	sup := supervisor.New[MSG, REPLY](factory, cfg.spawnConcurrency, entry)

	c, err := coordinator.New[MSG, REPLY](coordinator.Config[MSG, REPLY]{
		Supervisor:  sup,
		Size:        cfg.size,
		MaxOverflow: cfg.maxOverflow,
		Strategy:    cfg.strategy,
		Name:        cfg.name,
		Log:         entry,
		Metrics:     coordinator.NewMetrics(reg, cfg.name),
	})
	if err != nil {
		return nil, err
	}

	return &Pool[MSG, REPLY]{c: c}, nil
}

// Checkout hands out an idle worker for the caller to use directly via
// Handle.Call, followed by Checkin. If block is false and no capacity is
// available, it returns ErrFull immediately.
func (p *Pool[MSG, REPLY]) Checkout(ctx context.Context, block bool) (*Handle[MSG, REPLY], error) {
	return p.c.Checkout(ctx, block)
}

// Checkin returns a worker obtained from Checkout. A checkin for an unknown
// or already-idle worker is a silent no-op.
func (p *Pool[MSG, REPLY]) Checkin(h *Handle[MSG, REPLY]) {
	p.c.Checkin(h)
}

// Work submits msg to an available worker and returns its reply, performing
// the checkin automatically once the worker replies.
func (p *Pool[MSG, REPLY]) Work(ctx context.Context, msg MSG, block bool) (REPLY, error) {
	return p.c.Work(ctx, msg, block)
}

// Transaction checks out a worker, runs fn against it, and guarantees
// checkin on every exit path, including a returned error from fn.
func (p *Pool[MSG, REPLY]) Transaction(ctx context.Context, timeout time.Duration, fn func(*Handle[MSG, REPLY]) error) error {
	return p.c.Transaction(ctx, timeout, fn)
}

// Status reports the pool's derived state and population counts.
func (p *Pool[MSG, REPLY]) Status() Status {
	return p.c.Status()
}

// Stop gracefully shuts the pool down: queued waiters fail with
// ErrPoolStopped and every worker is terminated.
func (p *Pool[MSG, REPLY]) Stop(ctx context.Context) error {
	return p.c.Stop(ctx)
}

// Status mirrors internal/coordinator.Status as the package's public
// observable 4-tuple (plus Stopped).
type Status = coordinator.Status
