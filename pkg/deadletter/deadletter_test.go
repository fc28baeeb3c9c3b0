package deadletter

import "testing"

func TestNewDefaultsSchema(t *testing.T) {
	r := New(nil, "")
	if r.schema != "coordination" {
		t.Fatalf("schema = %q, want coordination", r.schema)
	}
	if got := r.table("outbox"); got != "coordination.outbox" {
		t.Fatalf("table(%q) = %q, want coordination.outbox", "outbox", got)
	}
}

func TestNewKeepsExplicitSchema(t *testing.T) {
	r := New(nil, "tenant_a")
	if got := r.table("inbox"); got != "tenant_a.inbox" {
		t.Fatalf("table(%q) = %q, want tenant_a.inbox", "inbox", got)
	}
}
