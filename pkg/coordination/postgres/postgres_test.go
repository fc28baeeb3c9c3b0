package postgres

import "testing"

func TestConfigSchemaOrDefault(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty defaults to coordination", Config{}, "coordination"},
		{"explicit schema kept", Config{Schema: "tenant_a"}, "tenant_a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.schemaOrDefault(); got != tc.want {
				t.Fatalf("schemaOrDefault() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewWithPoolDefaultsSchema(t *testing.T) {
	c := NewWithPool(nil, "")
	if c.schema != "coordination" {
		t.Fatalf("schema = %q, want coordination", c.schema)
	}
}
