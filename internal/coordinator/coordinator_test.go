package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
	"github.com/mvandermade/poolkeeper/internal/supervisor"
)

// echoWorker is the test double used throughout this suite: it returns its
// input unchanged, except for a sentinel message that induces a panic so
// crash-handling (E5) can be exercised without a real external
// process.
type echoWorker struct{}

func (echoWorker) Handle(ctx context.Context, msg string) (string, error) {
	if msg == "__die__" {
		panic("induced crash")
	}
	return msg, nil
}

func echoFactory() poolcore.Factory[string, string] {
	return func(ctx context.Context) (poolcore.Worker[string, string], error) {
		return echoWorker{}, nil
	}
}

func newTestCoordinator(t *testing.T, size, maxOverflow int, strategy poolcore.Strategy) *Coordinator[string, string] {
	t.Helper()
	return newTestCoordinatorWithFactory(t, echoFactory(), size, maxOverflow, strategy)
}

func newTestCoordinatorWithFactory(t *testing.T, factory poolcore.Factory[string, string], size, maxOverflow int, strategy poolcore.Strategy) *Coordinator[string, string] {
	t.Helper()

	sup := supervisor.New[string, string](factory, 4, nil)
	c, err := New[string, string](Config[string, string]{
		Supervisor:  sup,
		Size:        size,
		MaxOverflow: maxOverflow,
		Strategy:    strategy,
		Name:        t.Name(),
		Log:         logrus.NewEntry(logrus.New()),
		Metrics:     NewMetrics(prometheus.NewRegistry(), t.Name()),
	})
	if err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
	return c
}

// CoordinatorTestSuite exercises the coordinator end-to-end, wired to the
// real default supervisor, as a stateful suite covering each scenario in
// turn.
type CoordinatorTestSuite struct {
	suite.Suite
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

// TestScenario_S1_OverflowSpawnAndDismissOnCheckin reproduces spec scenario
// S1: size=2, max_overflow=2, strategy=LIFO.
func (s *CoordinatorTestSuite) TestScenario_S1_OverflowSpawnAndDismissOnCheckin() {
	c := newTestCoordinator(s.T(), 2, 2, poolcore.LIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()

	h1, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	h2, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	h3, err := c.Checkout(ctx, false)
	s.Require().NoError(err)

	st := c.Status()
	s.Require().Equal(1, st.Overflow)
	s.Require().Equal(3, st.Busy)
	s.Require().Equal(0, st.Idle)

	c.Checkin(h1)
	c.Checkin(h2)
	c.Checkin(h3)

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 2 && st.Overflow == 0 && st.Busy == 0
	}, time.Second, 5*time.Millisecond)
}

// blockingWorker holds Handle open until release is closed, letting a test
// observe the pool's state while a work call is still in flight rather than
// racing the coordinator's automatic post-work checkin.
type blockingWorker struct {
	release <-chan struct{}
}

func (w *blockingWorker) Handle(ctx context.Context, msg string) (string, error) {
	select {
	case <-w.release:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TestScenario_S2_NonBlockingWorkThenFull reproduces spec scenario S2. The
// two overflow workers are held open deliberately so the test can observe
// overflow=1 and then overflow=2 before either work call's automatic
// checkin (which would immediately dismiss it) fires.
func (s *CoordinatorTestSuite) TestScenario_S2_NonBlockingWorkThenFull() {
	var spawned int32
	releases := []chan struct{}{make(chan struct{}), make(chan struct{})}

	factory := func(ctx context.Context) (poolcore.Worker[string, string], error) {
		i := atomic.AddInt32(&spawned, 1) - 1
		if i < 2 {
			return echoWorker{}, nil
		}
		return &blockingWorker{release: releases[i-2]}, nil
	}

	c := newTestCoordinatorWithFactory(s.T(), factory, 2, 2, poolcore.LIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()

	h1, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	h2, err := c.Checkout(ctx, false)
	s.Require().NoError(err)

	type outcome struct {
		reply string
		err   error
	}
	results := make(chan outcome, 2)

	go func() {
		reply, err := c.Work(context.Background(), "m1", false)
		results <- outcome{reply, err}
	}()
	s.Eventually(func() bool { return c.Status().Overflow == 1 }, time.Second, 5*time.Millisecond)

	go func() {
		reply, err := c.Work(context.Background(), "m2", false)
		results <- outcome{reply, err}
	}()
	s.Eventually(func() bool { return c.Status().Overflow == 2 }, time.Second, 5*time.Millisecond)

	_, err = c.Work(ctx, "m3", false)
	s.Require().ErrorIs(err, poolcore.ErrFull)

	close(releases[0])
	close(releases[1])

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		out := <-results
		s.Require().NoError(out.err)
		got[out.reply] = true
	}
	s.Require().True(got["m1"] && got["m2"])

	c.Checkin(h1)
	c.Checkin(h2)

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 2 && st.Overflow == 0 && st.Busy == 0
	}, time.Second, 5*time.Millisecond)
}

// TestScenario_S3_TimeoutRemovesWaiter reproduces spec scenario S3:
// max_overflow=0, a blocked third checkout times out and its waiter is
// removed; a subsequent checkin goes to idle, not to the stale waiter.
func (s *CoordinatorTestSuite) TestScenario_S3_TimeoutRemovesWaiter() {
	c := newTestCoordinator(s.T(), 2, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()

	h1, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	h2, err := c.Checkout(ctx, false)
	s.Require().NoError(err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Checkout(timeoutCtx, true)
	elapsed := time.Since(start)

	s.Require().ErrorIs(err, context.DeadlineExceeded)
	s.Require().GreaterOrEqual(elapsed, 100*time.Millisecond)

	s.Eventually(func() bool {
		return c.Status().Waiters == 0
	}, time.Second, 5*time.Millisecond)

	c.Checkin(h1)

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 1 && st.Busy == 1
	}, time.Second, 5*time.Millisecond)

	c.Checkin(h2)
}

// TestClientDownReclaimsAbandonedCheckout covers E4: a caller that checks a
// worker out with a bounded context and then never checks it back in (the
// in-process stand-in for a dead holder) still has its worker reclaimed
// once that context's deadline passes, rather than leaking it forever.
func (s *CoordinatorTestSuite) TestClientDownReclaimsAbandonedCheckout() {
	c := newTestCoordinator(s.T(), 1, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	holderCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h, err := c.Checkout(holderCtx, false)
	s.Require().NoError(err)
	s.Require().NotNil(h)
	s.Require().Equal(1, c.Status().Busy)

	// No Checkin call follows: holderCtx expiring is the only signal the
	// coordinator gets that this holder is gone.
	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 1 && st.Busy == 0
	}, time.Second, 5*time.Millisecond)
}

// TestScenario_S4_FIFOStrategyRotation reproduces spec scenario S4.
func (s *CoordinatorTestSuite) TestScenario_S4_FIFOStrategyRotation() {
	c := newTestCoordinator(s.T(), 3, 0, poolcore.FIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()

	a, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	b, err := c.Checkout(ctx, false)
	s.Require().NoError(err)

	c.Checkin(a)
	s.Eventually(func() bool { return c.Status().Idle == 2 }, time.Second, 5*time.Millisecond)

	got, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	s.Require().Equal("c", workerLabel(a, b, got))

	c.Checkin(b)
	c.Checkin(got)
	s.Eventually(func() bool { return c.Status().Idle == 3 }, time.Second, 5*time.Millisecond)

	final, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	s.Require().Same(a, final)
}

// workerLabel names h relative to the already-known handles a and b, so
// assertions read as "c" rather than comparing raw pointers inline.
func workerLabel(a, b, h *poolcore.Handle[string, string]) string {
	switch h {
	case a:
		return "a"
	case b:
		return "b"
	default:
		return "c"
	}
}

// TestScenario_S5_BusyWorkerCrashIsReplaced reproduces spec scenario S5.
func (s *CoordinatorTestSuite) TestScenario_S5_BusyWorkerCrashIsReplaced() {
	c := newTestCoordinator(s.T(), 2, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()

	h1, err := c.Checkout(ctx, false)
	s.Require().NoError(err)
	_, err = c.Checkout(ctx, false)
	s.Require().NoError(err)

	callCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, _ = h1.Call(callCtx, "__die__")

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle+st.Busy == 2 && st.Busy == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestScenario_S6_TenConcurrentWorkCallsSingleWorker reproduces spec
// scenario S6: size=1, max_overflow=0, ten concurrent work calls each get
// their own distinct reply, final state returns to empty.
func (s *CoordinatorTestSuite) TestScenario_S6_TenConcurrentWorkCallsSingleWorker() {
	c := newTestCoordinator(s.T(), 1, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("msg-%d", i)
			reply, err := c.Work(context.Background(), msg, true)
			results[i] = reply
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.Require().Equal(fmt.Sprintf("msg-%d", i), results[i])
	}

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 1 && st.Overflow == 0 && st.Waiters == 0 && st.Busy == 0
	}, time.Second, 5*time.Millisecond)
}

// TestCheckinUnknownWorkerIsNoOp covers the round-trip/idempotence law: a
// checkin of an unknown worker does not panic or alter state.
func (s *CoordinatorTestSuite) TestCheckinUnknownWorkerIsNoOp() {
	c := newTestCoordinator(s.T(), 1, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	foreign := poolcore.NewHandle[string, string]()
	c.Checkin(foreign)

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 1 && st.Busy == 0
	}, time.Second, 5*time.Millisecond)
}

// TestCheckoutCheckinLoopPreservesIdentity covers the round-trip law:
// repeated checkout/checkin preserves idle population and overflow=0.
func (s *CoordinatorTestSuite) TestCheckoutCheckinLoopPreservesIdentity() {
	c := newTestCoordinator(s.T(), 2, 2, poolcore.LIFO)
	defer c.Stop(context.Background())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		h, err := c.Checkout(ctx, false)
		s.Require().NoError(err)
		c.Checkin(h)
	}

	s.Eventually(func() bool {
		st := c.Status()
		return st.Idle == 2 && st.Overflow == 0
	}, time.Second, 5*time.Millisecond)
}

// TestStatusGenerationAdvances covers Status's freshness counter: it only
// promises that two snapshots straddling some activity differ, not any
// particular value.
func (s *CoordinatorTestSuite) TestStatusGenerationAdvances() {
	c := newTestCoordinator(s.T(), 1, 0, poolcore.LIFO)
	defer c.Stop(context.Background())

	before := c.Status().Generation

	h, err := c.Checkout(context.Background(), false)
	s.Require().NoError(err)
	c.Checkin(h)

	s.Eventually(func() bool {
		return c.Status().Generation > before
	}, time.Second, 5*time.Millisecond)
}

// TestCancelOfAlreadyServedClientDegradesToCheckin is a white-box unit test
// of the round-trip law "cancelling an already-served client_ref degrades
// to a checkin of its worker": it drives handleCancel directly against
// a Coordinator whose loop goroutine has not been started, so the handler
// can be exercised deterministically without a race against it.
func TestCancelOfAlreadyServedClientDegradesToCheckin(t *testing.T) {
	sup := supervisor.New[string, string](echoFactory(), 1, nil)
	h, err := sup.Spawn(context.Background())
	if err != nil {
		t.Fatalf("Spawn returned unexpected error: %v", err)
	}

	c := &Coordinator[string, string]{
		supervisor:        sup,
		strategy:          poolcore.LIFO,
		monitors:          make(map[*poolcore.Handle[string, string]]monitorEntry),
		monitorByRef:      make(map[poolcore.CancelToken]*poolcore.Handle[string, string]),
		monitorByLiveness: make(map[poolcore.MonitorToken]*poolcore.Handle[string, string]),
	}

	ref := poolcore.NewToken()
	liveness := poolcore.NewToken()
	c.monitorAdd(h, ref, liveness, nil)

	c.handleCancel(ref)

	if len(c.monitors) != 0 {
		t.Fatalf("expected the monitor to be released, got %d still registered", len(c.monitors))
	}
	if len(c.idle) != 1 || c.idle[0] != h {
		t.Fatalf("expected the worker to be returned to idle, got idle=%v", c.idle)
	}
}

// TestSpawnFailureDuringPrepopulationIsFatal covers a failing factory
// at startup returns an error from New and never produces a usable pool.
func (s *CoordinatorTestSuite) TestSpawnFailureDuringPrepopulationIsFatal() {
	boom := errors.New("factory unavailable")
	failingFactory := func(ctx context.Context) (poolcore.Worker[string, string], error) {
		return nil, boom
	}
	sup := supervisor.New[string, string](failingFactory, 1, nil)

	_, err := New[string, string](Config[string, string]{
		Supervisor:  sup,
		Size:        1,
		MaxOverflow: 0,
		Name:        s.T().Name(),
	})
	s.Require().Error(err)
	s.Require().ErrorIs(err, poolcore.ErrSpawnFailed)
}

// TestInvariants_PopulationEquation stresses P1/P2/P3 under concurrent
// checkout/checkin traffic, polling Status between requests.
func (s *CoordinatorTestSuite) TestInvariants_PopulationEquation() {
	const size, maxOverflow = 2, 3
	c := newTestCoordinator(s.T(), size, maxOverflow, poolcore.LIFO)
	defer c.Stop(context.Background())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	violations := make(chan string, 64)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			st := c.Status()
			if st.Idle+st.Busy != size+st.Overflow {
				violations <- fmt.Sprintf("population equation violated: %+v", st)
			}
			if st.Overflow < 0 || st.Overflow > maxOverflow {
				violations <- fmt.Sprintf("overflow bound violated: %+v", st)
			}
			if st.Waiters > 0 && (st.Idle != 0 || st.Overflow != maxOverflow) {
				violations <- fmt.Sprintf("waiter invariant violated: %+v", st)
			}
		}
	}()

	var cwg sync.WaitGroup
	for i := 0; i < 8; i++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := 0; j < 25; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				h, err := c.Checkout(ctx, true)
				if err == nil {
					c.Checkin(h)
				}
				cancel()
			}
		}()
	}
	cwg.Wait()

	close(stop)
	wg.Wait()
	close(violations)

	for v := range violations {
		s.Fail(v)
	}
}
