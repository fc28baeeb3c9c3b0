package envelope

import (
	"testing"
	"time"
)

func TestNewAssignsFreshMessageID(t *testing.T) {
	e := New("order.created", "payload")
	if e.MessageID == "" {
		t.Fatal("expected a non-empty message id")
	}
	if len(e.Hops) != 0 {
		t.Fatalf("expected no hops on a fresh envelope, got %d", len(e.Hops))
	}
}

func TestWithHopDoesNotMutateReceiver(t *testing.T) {
	e := New("order.created", "payload")
	hop := Hop{ServiceInstance: "svc-1", Timestamp: time.Now(), Type: HopCurrent}

	e2 := e.WithHop(hop)

	if len(e.Hops) != 0 {
		t.Fatalf("original envelope should be untouched, got %d hops", len(e.Hops))
	}
	if len(e2.Hops) != 1 {
		t.Fatalf("new envelope should have 1 hop, got %d", len(e2.Hops))
	}

	e3 := e2.WithHop(Hop{ServiceInstance: "svc-2", Type: HopCausation})
	if len(e2.Hops) != 1 {
		t.Fatalf("appending to e3 should not mutate e2's hop slice, got %d", len(e2.Hops))
	}
	if len(e3.Hops) != 2 {
		t.Fatalf("e3 should have 2 hops, got %d", len(e3.Hops))
	}
}

func TestLastHop(t *testing.T) {
	e := New("order.created", "payload")
	if _, ok := e.LastHop(); ok {
		t.Fatal("expected no last hop on a fresh envelope")
	}

	e = e.WithHop(Hop{ServiceInstance: "svc-1"}).WithHop(Hop{ServiceInstance: "svc-2"})
	last, ok := e.LastHop()
	if !ok {
		t.Fatal("expected a last hop")
	}
	if last.ServiceInstance != "svc-2" {
		t.Fatalf("LastHop().ServiceInstance = %q, want svc-2", last.ServiceInstance)
	}
}

func TestMessageIDLessOrdersUUIDv7Lexically(t *testing.T) {
	a := NewMessageID()
	time.Sleep(time.Millisecond)
	b := NewMessageID()

	if !a.Less(b) {
		t.Fatalf("expected %s to sort before %s (UUIDv7 time-ordering)", a, b)
	}
}
