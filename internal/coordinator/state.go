package coordinator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
)

// monitorEntry is a monitor record: the association between a busy worker and
// the client that holds it. watchStop, when non-nil, is closed by
// monitorRemoveByHandle to retire the goroutine started by
// startHolderWatch for this monitor.
type monitorEntry struct {
	clientRef     poolcore.CancelToken
	livenessToken poolcore.MonitorToken
	watchStop     chan struct{}
}

// waiter is a client blocked on checkout or work because neither an idle
// worker nor an overflow slot was available at request time. ctx is the
// caller's context, carried forward so a checkout waiter that is later
// promoted to a held worker (via reassign or the worker-crash procedure)
// can still be watched for abandonment after assignment.
type waiter[MSG any, REPLY any] struct {
	clientRef     poolcore.CancelToken
	livenessToken poolcore.MonitorToken
	isWork        bool
	msg           MSG
	checkoutReply chan checkoutResult[MSG, REPLY]
	workReply     chan workResult[REPLY]
	ctx           context.Context
}

// Coordinator is the pool's single serialization point. Every field below is
// touched only from the goroutine running loop(); callers interact
// exclusively through the event channel and the public methods in
// coordinator.go.
type Coordinator[MSG any, REPLY any] struct {
	inbox chan event[MSG, REPLY]
	done  chan struct{}

	supervisor poolcore.Supervisor[MSG, REPLY]

	size        int
	maxOverflow int
	overflow    int
	strategy    poolcore.Strategy

	idle     []*poolcore.Handle[MSG, REPLY]
	waiters  []waiter[MSG, REPLY]
	monitors map[*poolcore.Handle[MSG, REPLY]]monitorEntry

	monitorByRef      map[poolcore.CancelToken]*poolcore.Handle[MSG, REPLY]
	monitorByLiveness map[poolcore.MonitorToken]*poolcore.Handle[MSG, REPLY]

	generation uint64
	stopped    bool

	name    string
	log     *logrus.Entry
	metrics *metrics
}

// Config groups the values New needs to build and prepopulate a Coordinator.
// It mirrors the functional-options config assembled by pkg/pool before
// reaching this package.
type Config[MSG any, REPLY any] struct {
	Supervisor  poolcore.Supervisor[MSG, REPLY]
	Size        int
	MaxOverflow int
	Strategy    poolcore.Strategy
	Name        string
	Log         *logrus.Entry
	Metrics     *metrics
}

// New spawns Size workers, queues them into idle in spawn order, and starts
// the coordinator's event loop. The returned Coordinator is immediately
// usable; spawn failures during prepopulation are fatal and leave the
// coordinator already stopped.
func New[MSG any, REPLY any](cfg Config[MSG, REPLY]) (*Coordinator[MSG, REPLY], error) {
	c := &Coordinator[MSG, REPLY]{
		inbox:             make(chan event[MSG, REPLY]),
		done:              make(chan struct{}),
		supervisor:        cfg.Supervisor,
		size:              cfg.Size,
		maxOverflow:       cfg.MaxOverflow,
		strategy:          cfg.Strategy,
		monitors:          make(map[*poolcore.Handle[MSG, REPLY]]monitorEntry),
		monitorByRef:      make(map[poolcore.CancelToken]*poolcore.Handle[MSG, REPLY]),
		monitorByLiveness: make(map[poolcore.MonitorToken]*poolcore.Handle[MSG, REPLY]),
		name:              cfg.Name,
		log:               cfg.Log,
		metrics:           cfg.Metrics,
	}

	for i := 0; i < cfg.Size; i++ {
		h, err := cfg.Supervisor.Spawn(context.Background())
		if err != nil {
			close(c.done)
			return nil, err
		}
		c.idlePushBack(h)
	}

	go c.loop()
	return c, nil
}
