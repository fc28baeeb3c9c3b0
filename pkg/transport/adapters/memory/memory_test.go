package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/transport"
	"github.com/relaymesh/workcoordinator/pkg/transport/adapters/memory"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	tr := memory.New(memory.Config{BufferSize: 4})
	defer tr.Close()

	dest := transport.Destination{Address: "orders"}

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})

	sub, err := tr.Subscribe(context.Background(), dest, func(ctx context.Context, d transport.Destination, payload []byte, headers map[string]string) error {
		mu.Lock()
		received = payload
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	result := tr.Publish(context.Background(), dest, []byte("hello"), nil)
	if !result.Success {
		t.Fatalf("Publish() success = false, err = %v", result.Err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != "hello" {
		t.Fatalf("received = %q, want %q", received, "hello")
	}
}

func TestPublishFailsWhenBufferFull(t *testing.T) {
	tr := memory.New(memory.Config{BufferSize: 1})
	defer tr.Close()

	dest := transport.Destination{Address: "full"}
	if res := tr.Publish(context.Background(), dest, []byte("a"), nil); !res.Success {
		t.Fatalf("first publish should succeed, got err %v", res.Err)
	}
	if res := tr.Publish(context.Background(), dest, []byte("b"), nil); res.Success {
		t.Fatal("second publish should fail once buffer is full")
	}
}

func TestIsReadyReflectsClosedState(t *testing.T) {
	tr := memory.New(memory.Config{})
	if !tr.IsReady(context.Background()) {
		t.Fatal("expected ready before Close")
	}
	tr.Close()
	if tr.IsReady(context.Background()) {
		t.Fatal("expected not ready after Close")
	}
}
