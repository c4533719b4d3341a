// Package lifecycle runs the background preempt sweeper and the one-shot
// first-enable tenant migration, both grounded on
// original_source/scratch_notebook/eviction.py's PreemptiveSweeper.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/telemetry"
)

// Controller owns the preempt-policy sweeper goroutine. It is only useful
// when Config.EvictionPolicy == preempt; other policies are enforced
// inline by catalog.Store.CreatePad and Controller.Start is a no-op for them.
type Controller struct {
	store    catalog.Store
	logger   *slog.Logger
	age      time.Duration
	interval time.Duration
	active   bool

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
	drainCh    chan context.Context

	sweepCount atomic.Int64
	evictCount atomic.Int64
}

// New builds a Controller. It always constructs cleanly; whether the sweep
// loop actually runs depends on cfg.EvictionPolicy.
func New(store catalog.Store, cfg config.Config, logger *slog.Logger) *Controller {
	interval := cfg.PreemptInterval
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &Controller{
		store:    store,
		logger:   logger,
		age:      cfg.PreemptAge,
		interval: interval,
		active:   cfg.EvictionPolicy == config.EvictionPreempt,
		done:     make(chan struct{}),
		drainCh:  make(chan context.Context, 1),
	}
}

// Start begins the background sweep loop. Safe to call only once; a second
// call logs a warning and returns. A no-op when the configured eviction
// policy isn't "preempt".
func (c *Controller) Start(ctx context.Context) {
	if !c.active {
		return
	}
	if !c.started.CompareAndSwap(false, true) {
		c.logger.Warn("lifecycle: Start called more than once, ignoring")
		return
	}
	c.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelLoop = cancel
	go c.run(loopCtx)
}

// Drain stops the sweep loop and blocks until the loop has exited or ctx
// expires, whichever comes first.
func (c *Controller) Drain(ctx context.Context) {
	if !c.started.Load() {
		return
	}
	select {
	case c.drainCh <- ctx:
	default:
	}
	if c.cancelLoop != nil {
		c.cancelLoop()
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		c.logger.Warn("lifecycle: drain timed out")
	}
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.once.Do(func() { close(c.done) })
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Controller) sweepOnce(ctx context.Context) {
	tenants, err := c.store.Tenants(ctx)
	if err != nil {
		c.logger.Error("lifecycle: list tenants failed", "error", err)
		return
	}
	maxAge := int64(c.age / time.Second)
	c.sweepCount.Add(1)
	for _, tenant := range tenants {
		select {
		case <-ctx.Done():
			return
		default:
		}
		evicted, err := c.store.EvictExpired(ctx, tenant, maxAge)
		if err != nil {
			c.logger.Error("lifecycle: preempt sweep failed", "tenant_id", tenant, "error", err)
			continue
		}
		if len(evicted) > 0 {
			c.evictCount.Add(int64(len(evicted)))
			c.logger.Info("lifecycle: preempt sweep evicted pads",
				"policy", "preempt", "tenant_id", tenant, "scratchpad_ids", evicted)
		}
	}
}

func (c *Controller) registerMetrics() {
	meter := telemetry.Meter("scratchnotebook/lifecycle")

	_, _ = meter.Int64ObservableCounter("scratchnotebook.lifecycle.sweeps",
		metric.WithDescription("Number of preempt sweep passes completed"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(c.sweepCount.Load())
			return nil
		}),
	)
	_, _ = meter.Int64ObservableCounter("scratchnotebook.lifecycle.evictions",
		metric.WithDescription("Number of pads evicted by the preempt sweeper"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(c.evictCount.Load())
			return nil
		}),
	)
}
