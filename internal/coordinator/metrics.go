package coordinator

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors the coordinator's counts onto Prometheus gauges so a pool
// can be scraped the same way the rest of this corpus's services expose
// their internal state, instead of only through the synchronous Status()
// call.
type metrics struct {
	idle     prometheus.Gauge
	overflow prometheus.Gauge
	busy     prometheus.Gauge
	waiters  prometheus.Gauge
	events   *prometheus.CounterVec
}

// NewMetrics builds and registers a fresh metrics set against reg, labeling
// every series with the pool's name. reg is caller-owned: pkg/pool defaults
// to a private prometheus.NewRegistry() per pool unless the caller supplies
// one explicitly, so multiple unnamed pools never collide on the global
// default registry.
func NewMetrics(reg prometheus.Registerer, name string) *metrics {
	labels := prometheus.Labels{"pool": name}

	m := &metrics{
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "poolkeeper",
			Name:        "idle_workers",
			Help:        "Number of workers currently idle.",
			ConstLabels: labels,
		}),
		overflow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "poolkeeper",
			Name:        "overflow_workers",
			Help:        "Number of overflow workers currently spawned.",
			ConstLabels: labels,
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "poolkeeper",
			Name:        "busy_workers",
			Help:        "Number of workers currently checked out or dispatched work.",
			ConstLabels: labels,
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "poolkeeper",
			Name:        "waiters",
			Help:        "Number of clients queued waiting for a worker.",
			ConstLabels: labels,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "poolkeeper",
			Name:        "events_total",
			Help:        "Events processed by the coordinator, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
	}

	reg.MustRegister(m.idle, m.overflow, m.busy, m.waiters, m.events)
	return m
}

// observe refreshes the gauges from a status snapshot.
func (m *metrics) observe(s Status) {
	if m == nil {
		return
	}
	m.idle.Set(float64(s.Idle))
	m.overflow.Set(float64(s.Overflow))
	m.busy.Set(float64(s.Busy))
	m.waiters.Set(float64(s.Waiters))
}

// countEvent increments the per-kind event counter.
func (m *metrics) countEvent(kind eventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kindName(kind)).Inc()
}

func kindName(k eventKind) string {
	switch k {
	case evCheckoutReq:
		return "checkout"
	case evWorkReq:
		return "work"
	case evCheckin:
		return "checkin"
	case evCancel:
		return "cancel"
	case evClientDown:
		return "client_down"
	case evWorkerExit:
		return "worker_exit"
	case evStatusQuery:
		return "status_query"
	case evStop:
		return "stop"
	default:
		return "unknown"
	}
}
