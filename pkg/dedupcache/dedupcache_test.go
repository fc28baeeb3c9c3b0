package dedupcache

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/envelope"
	"github.com/relaymesh/workcoordinator/pkg/errors"
)

type memCache struct {
	values map[string]any
}

func newMemCache() *memCache { return &memCache{values: map[string]any{}} }

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return errors.New(errors.CodeNotFound, "not found", nil)
	}
	switch d := dest.(type) {
	case *bool:
		*d = v.(bool)
	}
	return nil
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memCache) Incr(ctx context.Context, key string, delta int64) (int64, error) { return 0, nil }
func (m *memCache) Close() error                                                     { return nil }

func TestMarkSeenThenSeenRecently(t *testing.T) {
	c := New(newMemCache())
	id := envelope.MessageID("msg-1")

	if c.SeenRecently(context.Background(), id) {
		t.Fatal("expected not seen before MarkSeen")
	}
	if err := c.MarkSeen(context.Background(), id); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if !c.SeenRecently(context.Background(), id) {
		t.Fatal("expected seen after MarkSeen")
	}
}
