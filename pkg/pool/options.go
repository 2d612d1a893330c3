package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
)

// config collects every recognized configuration option before New
// defaults and validates it.
type config struct {
	size             int
	maxOverflow      int
	strategy         poolcore.Strategy
	name             string
	logger           *logrus.Logger
	registerer       prometheus.Registerer
	spawnConcurrency int64
}

// Option configures a pool at construction time.
type Option func(*config)

// WithSize sets the steady-state worker count. Default 5.
func WithSize(size int) Option {
	return func(c *config) { c.size = size }
}

// WithMaxOverflow sets how many additional workers may be spawned under
// load beyond the steady-state size. Default 10.
func WithMaxOverflow(maxOverflow int) Option {
	return func(c *config) { c.maxOverflow = maxOverflow }
}

// WithStrategy sets the idle-worker reinsertion end on checkin. Default
// LIFO.
func WithStrategy(strategy Strategy) Option {
	return func(c *config) { c.strategy = strategy }
}

// WithName sets the label attached to every log line and metric this pool
// emits. It is purely an observability label, not a process-wide registry.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger supplies the logrus.Logger the pool logs lifecycle events
// through. Defaults to logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetricsRegisterer supplies the Prometheus registerer the pool's
// gauges and counters register against. Defaults to a private, freshly
// created prometheus.NewRegistry() so that multiple pools in one process
// never collide registering the same metric names.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithSpawnConcurrency bounds how many worker-factory calls may run at
// once. Default 4.
func WithSpawnConcurrency(n int64) Option {
	return func(c *config) { c.spawnConcurrency = n }
}

func defaultConfig() *config {
	return &config{
		size:             5,
		maxOverflow:      10,
		strategy:         poolcore.LIFO,
		spawnConcurrency: 4,
	}
}
