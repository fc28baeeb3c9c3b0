package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/envelope"
	"github.com/relaymesh/workcoordinator/pkg/metrics"
	"github.com/relaymesh/workcoordinator/pkg/transport"
)

type fakeCoordinator struct {
	mu      sync.Mutex
	calls   int
	batches []coordination.WorkBatch
	err     error
}

func (f *fakeCoordinator) Call(ctx context.Context, req coordination.Request) (*coordination.WorkBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return &coordination.WorkBatch{}, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return &b, nil
}

type fakeStrategy struct {
	ready   bool
	results map[envelope.MessageID]transport.PublishResult
}

func (f *fakeStrategy) IsReady(ctx context.Context) bool { return f.ready }

func (f *fakeStrategy) Publish(ctx context.Context, dest transport.Destination, payload []byte, headers map[string]string) transport.PublishResult {
	id := envelope.MessageID(headers["message-id"])
	if r, ok := f.results[id]; ok {
		return r
	}
	return transport.PublishResult{Success: true}
}

func TestPublishOneReportsSuccessCompletion(t *testing.T) {
	strategy := &fakeStrategy{ready: true, results: map[envelope.MessageID]transport.PublishResult{}}
	w := New(Config{}, &fakeCoordinator{}, strategy,
		func(work coordination.OutboxWork) transport.Destination {
			return transport.Destination{Address: work.Destination}
		}, nil, nil, metrics.Noop(), nil)

	w.publishOne(context.Background(), coordination.OutboxWork{MessageID: "msg-1", Destination: "orders"})

	completions, _, _, _, _ := w.accum.drain()
	if len(completions) != 1 || completions[0].MessageID != "msg-1" {
		t.Fatalf("expected one completion for msg-1, got %+v", completions)
	}
}

func TestPublishOneRenewsLeaseWhenTransportNotReady(t *testing.T) {
	strategy := &fakeStrategy{ready: false}
	w := New(Config{}, &fakeCoordinator{}, strategy,
		func(work coordination.OutboxWork) transport.Destination {
			return transport.Destination{Address: work.Destination}
		}, nil, nil, metrics.Noop(), nil)

	w.publishOne(context.Background(), coordination.OutboxWork{MessageID: "msg-1", Destination: "orders"})

	_, _, _, _, renewals := w.accum.drain()
	if len(renewals) != 1 || renewals[0] != "msg-1" {
		t.Fatalf("expected one lease renewal for msg-1, got %+v", renewals)
	}
}

func TestCoordinatorLoopTickPushesOutboxWorkToChannel(t *testing.T) {
	coord := &fakeCoordinator{batches: []coordination.WorkBatch{
		{OutboxWork: []coordination.OutboxWork{{MessageID: "msg-1", Destination: "orders"}}},
	}}
	w := New(Config{}, coord, &fakeStrategy{ready: true},
		func(work coordination.OutboxWork) transport.Destination {
			return transport.Destination{Address: work.Destination}
		}, nil, nil, metrics.Noop(), nil)

	w.tick(context.Background())

	select {
	case item := <-w.work:
		if item.MessageID != "msg-1" {
			t.Fatalf("item.MessageID = %q, want msg-1", item.MessageID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected outbox work on channel")
	}
}

func TestCoordinatorLoopTickTripsCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	coord := &fakeCoordinator{err: errors.New("connection refused")}
	w := New(Config{}, coord, &fakeStrategy{ready: true},
		func(work coordination.OutboxWork) transport.Destination {
			return transport.Destination{Address: work.Destination}
		}, nil, nil, metrics.Noop(), nil)

	// Default FailureThreshold is 5; drive it past that so the breaker
	// opens and stops forwarding calls to the coordinator.
	for i := 0; i < 10; i++ {
		w.tick(context.Background())
	}

	coord.mu.Lock()
	calls := coord.calls
	coord.mu.Unlock()

	if calls >= 10 {
		t.Fatalf("expected the circuit breaker to short-circuit some calls, got %d calls for 10 ticks", calls)
	}
}

func TestSortOutboxWorkAscendingByMessageID(t *testing.T) {
	items := []coordination.OutboxWork{
		{MessageID: "c"}, {MessageID: "a"}, {MessageID: "b"},
	}
	sortOutboxWork(items)
	if items[0].MessageID != "a" || items[1].MessageID != "b" || items[2].MessageID != "c" {
		t.Fatalf("items not sorted: %+v", items)
	}
}
