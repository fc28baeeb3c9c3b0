package coordination

import "testing"

func TestRequestIsEmpty(t *testing.T) {
	var r Request
	if !r.IsEmpty() {
		t.Fatal("zero-value request should be empty")
	}

	r.RenewOutboxLeaseIDs = append(r.RenewOutboxLeaseIDs, "msg-1")
	if r.IsEmpty() {
		t.Fatal("request with a lease renewal should not be empty")
	}
}

func TestWorkBatchIsEmpty(t *testing.T) {
	var b *WorkBatch
	if !b.IsEmpty() {
		t.Fatal("nil batch should be empty")
	}

	b = &WorkBatch{}
	if !b.IsEmpty() {
		t.Fatal("zero-value batch should be empty")
	}

	b.OutboxWork = append(b.OutboxWork, OutboxWork{MessageID: "msg-1"})
	if b.IsEmpty() {
		t.Fatal("batch with outbox work should not be empty")
	}
}
