package streamproc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/streamproc"
	"github.com/relaymesh/workcoordinator/pkg/unitofwork"
	"go.uber.org/goleak"
)

type fakeCoordinator struct{}

func (fakeCoordinator) Call(ctx context.Context, req coordination.Request) (*coordination.WorkBatch, error) {
	return &coordination.WorkBatch{}, nil
}

func newScope() *unitofwork.Scope {
	return unitofwork.NewScope(fakeCoordinator{}, nil, unitofwork.Identity{InstanceID: "i1"}, nil)
}

func TestStreamProcessesItemsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var order []string

	p := streamproc.New(streamproc.Config{ParallelizeStreams: true, MaxConcurrentStreams: 4}, func(ctx context.Context, work coordination.InboxWork) error {
		mu.Lock()
		order = append(order, string(work.MessageID))
		mu.Unlock()
		return nil
	}, newScope, nil)

	p.Accept([]coordination.InboxWork{
		{MessageID: "1", StreamID: "order-42"},
		{MessageID: "2", StreamID: "order-42"},
		{MessageID: "3", StreamID: "order-42"},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "1" || order[1] != "2" || order[2] != "3" {
		t.Fatalf("stream processed out of order: %v", order)
	}
}

func TestIndependentStreamsRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	releaseA := make(chan struct{})

	p := streamproc.New(streamproc.Config{ParallelizeStreams: true, MaxConcurrentStreams: 4}, func(ctx context.Context, work coordination.InboxWork) error {
		mu.Lock()
		seen[string(work.MessageID)] = true
		mu.Unlock()
		if work.StreamID == "stream-a" {
			<-releaseA
		}
		return nil
	}, newScope, nil)

	p.Accept([]coordination.InboxWork{
		{MessageID: "a1", StreamID: "stream-a"},
		{MessageID: "b1", StreamID: "stream-b"},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["b1"]
	})

	close(releaseA)
	p.Wait()
}

func TestParallelizeStreamsFalseCollapsesToSingleWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var order []string

	p := streamproc.New(streamproc.Config{ParallelizeStreams: false}, func(ctx context.Context, work coordination.InboxWork) error {
		mu.Lock()
		order = append(order, string(work.MessageID))
		mu.Unlock()
		return nil
	}, newScope, nil)

	p.Accept([]coordination.InboxWork{
		{MessageID: "x", StreamID: "stream-a"},
		{MessageID: "y", StreamID: "stream-b"},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "x" || order[1] != "y" {
		t.Fatalf("single worker processed items out of arrival order: %v", order)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition was not met before deadline")
}
