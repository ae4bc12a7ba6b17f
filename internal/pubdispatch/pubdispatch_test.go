package pubdispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	topic string
	body  string
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{topic, string(body)})
	return nil
}

func (f *fakePublisher) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestDispatcher(t *testing.T, delay time.Duration) (*Dispatcher, *fakePublisher, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	pub := &fakePublisher{}
	d := NewWithClient(rdb, pub, "monappsV3", delay, logr.Discard())
	return d, pub, s
}

func TestEnqueueNotDueImmediately(t *testing.T) {
	// The due score is a real wall-clock timestamp (time.Now().Add(delay)),
	// not a redis TTL, so this test advances time with a real sleep rather
	// than miniredis's FastForward (which only simulates key expiry).
	d, pub, _ := newTestDispatcher(t, 30*time.Millisecond)
	ctx := context.Background()

	err := d.Enqueue(ctx, "application", "42", model.MsgUpdate, map[string]any{"status": float64(1)})
	if err != nil {
		t.Fatal(err)
	}

	d.DrainDue(ctx) // nothing due yet
	if len(pub.snapshot()) != 0 {
		t.Fatalf("expected no publish before the delay elapses, got %v", pub.snapshot())
	}

	time.Sleep(40 * time.Millisecond)
	d.DrainDue(ctx)

	calls := pub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one publish after the delay, got %d", len(calls))
	}
	if calls[0].topic != "procdata/monappsV3/application/42" {
		t.Fatalf("topic = %q, want procdata/monappsV3/application/42", calls[0].topic)
	}
	if !strings.Contains(calls[0].body, `"id":"42"`) || !strings.Contains(calls[0].body, `"messageType":"u"`) ||
		!strings.Contains(calls[0].body, `"status":1`) {
		t.Fatalf("body = %q, missing expected fields", calls[0].body)
	}
}

func TestDrainDueIsIdempotentAcrossTwoDispatchers(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	pub := &fakePublisher{}
	rdb1 := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rdb2 := redis.NewClient(&redis.Options{Addr: s.Addr()})
	d1 := NewWithClient(rdb1, pub, "inst", time.Millisecond, logr.Discard())
	d2 := NewWithClient(rdb2, pub, "inst", time.Millisecond, logr.Discard())

	ctx := context.Background()
	if err := d1.Enqueue(ctx, "device", "7", model.MsgCreate, map[string]any{"devUi": "aa"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	d1.DrainDue(ctx)
	d2.DrainDue(ctx)

	if got := len(pub.snapshot()); got != 1 {
		t.Fatalf("expected exactly one publish across both dispatchers racing the same job, got %d", got)
	}
}

func TestEnqueueEmptyChangeSetPublishesSnapshot(t *testing.T) {
	d, pub, _ := newTestDispatcher(t, time.Millisecond)
	ctx := context.Background()

	snapshot := map[string]any{"status": float64(2), "currState": float64(1)}
	if err := d.Enqueue(ctx, "asset", "3", model.MsgUpdate, snapshot); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	d.DrainDue(ctx)

	calls := pub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one publish, got %d", len(calls))
	}
	if !strings.Contains(calls[0].body, `"status":2`) || !strings.Contains(calls[0].body, `"currState":1`) {
		t.Fatalf("body = %q, expected the full snapshot fields", calls[0].body)
	}
}
