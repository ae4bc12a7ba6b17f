package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func TestRunTicksEachWorkerIndependently(t *testing.T) {
	var countA, countB int64
	s := New(logr.Discard(), nil,
		Worker{Name: "a", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt64(&countA, 1)
			return nil
		}},
		Worker{Name: "b", Interval: 20 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt64(&countB, 1)
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if atomic.LoadInt64(&countA) < 5 {
		t.Fatalf("worker a ticked %d times, expected at least 5 in 55ms at a 5ms interval", countA)
	}
	if atomic.LoadInt64(&countB) < 1 || atomic.LoadInt64(&countB) > 3 {
		t.Fatalf("worker b ticked %d times, expected 1-3 in 55ms at a 20ms interval", countB)
	}
}

func TestOneWorkerFailureDoesNotStopTheOthers(t *testing.T) {
	var failing, healthy int64
	s := New(logr.Discard(), nil,
		Worker{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt64(&failing, 1)
			return context.DeadlineExceeded
		}},
		Worker{Name: "healthy", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt64(&healthy, 1)
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if atomic.LoadInt64(&failing) < 2 {
		t.Fatalf("failing worker ran %d times, expected repeated retries on its own ticker", failing)
	}
	if atomic.LoadInt64(&healthy) < 2 {
		t.Fatalf("healthy worker ran %d times, expected it to keep ticking despite the sibling's failures", healthy)
	}
}

func TestTriggerCollapsesConcurrentCallsIntoOneRun(t *testing.T) {
	var running int32
	var maxConcurrent int32
	var calls int64
	release := make(chan struct{})

	s := New(logr.Discard(), nil, Worker{
		Name:     "asset-updater",
		Interval: time.Hour, // never ticks on its own during this test
		Run: func(context.Context) error {
			atomic.AddInt64(&calls, 1)
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Trigger(context.Background(), "asset-updater")
		}()
	}
	time.Sleep(10 * time.Millisecond) // let all 5 goroutines reach Do() and join the in-flight call
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&maxConcurrent) != 1 {
		t.Fatalf("maxConcurrent = %d, want 1 (singleflight should collapse concurrent triggers)", maxConcurrent)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("Run invoked %d times, want exactly 1 for 5 concurrent triggers", calls)
	}
}

func TestTriggerUnknownWorkerErrors(t *testing.T) {
	s := New(logr.Discard(), nil)
	if err := s.Trigger(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unregistered worker name")
	}
}
