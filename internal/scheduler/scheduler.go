// Package scheduler runs the engine's independent periodic workers
// (spec.md §5: per-application evaluation, device updater, asset
// updater, periodic DS-health updater) as one ticker-driven goroutine
// each, fanned out with errgroup.Group so a worker's fatal error
// (context cancellation propagating to its siblings) is the only
// cross-worker coupling — otherwise they run fully independently, per
// §5's "no cross-component ordering is promised". The MQTT ingress
// handler is not a Worker here: it's driven by the broker's message
// delivery, not a ticker (internal/transport/mqtt.Client.onMessage).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/DmytroIE/Monapps-v5/internal/telemetry/metrics"
)

// Worker is one independently-ticking periodic task.
type Worker struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Workers concurrently and lets an external
// caller force an out-of-cycle tick (Trigger) without racing the regular
// ticker — both paths collapse through the same singleflight key per
// worker, mirroring §5's idempotent `enqueue_update` guarantee: a flood of
// concurrent triggers for the same worker runs it at most once at a time.
type Scheduler struct {
	workers map[string]Worker
	sf      singleflight.Group
	log     logr.Logger
	metrics *metrics.Registry // nil-safe: metrics are optional
}

// New builds a Scheduler over workers. metrics may be nil.
func New(log logr.Logger, reg *metrics.Registry, workers ...Worker) *Scheduler {
	byName := make(map[string]Worker, len(workers))
	for _, w := range workers {
		byName[w.Name] = w
	}
	return &Scheduler{workers: byName, log: log.WithName("scheduler"), metrics: reg}
}

// Run blocks until ctx is cancelled, running every worker on its own
// ticker. A worker whose Run returns an error is logged and retried on
// its next regular tick — one failing worker never stops the others.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			s.loop(ctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, w Worker) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, w)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, w Worker) {
	start := time.Now()
	_, err, _ := s.sf.Do(w.Name, func() (any, error) {
		return nil, w.Run(ctx)
	})
	if s.metrics != nil {
		s.metrics.SchedulerTickDuration.WithLabelValues(w.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.log.Error(err, "worker tick failed", "worker", w.Name)
	}
}

// Trigger forces an out-of-cycle run of the named worker — e.g. a save
// that moved an entity's next_upd_ts earlier and wants to wake the
// updater without waiting out the rest of its interval. If a run for
// that worker is already in flight, Trigger waits for it and returns its
// result rather than starting a second concurrent pass.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	w, ok := s.workers[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown worker %q", name)
	}
	start := time.Now()
	_, err, _ := s.sf.Do(w.Name, func() (any, error) {
		return nil, w.Run(ctx)
	})
	if s.metrics != nil {
		s.metrics.SchedulerTickDuration.WithLabelValues(w.Name).Observe(time.Since(start).Seconds())
	}
	return err
}
