package requestresponse

import "testing"

func TestNewDefaultsSchema(t *testing.T) {
	s := New(nil, "")
	if s.schema != "coordination" {
		t.Fatalf("schema = %q, want coordination", s.schema)
	}
}

func TestNewKeepsExplicitSchema(t *testing.T) {
	s := New(nil, "tenant_a")
	if s.schema != "tenant_a" {
		t.Fatalf("schema = %q, want tenant_a", s.schema)
	}
}
