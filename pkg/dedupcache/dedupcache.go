// Package dedupcache provides an optional read-through cache in front of
// the message_deduplication table (spec §3 DedupLedger). It never replaces
// the ledger as the source of truth — the coordination function's
// admission step (§4.1 step 4) is still what actually enforces
// once-ever-admitted semantics. This cache only spares callers a round
// trip when they want to check "have I already admitted this message_id"
// before bothering to queue it.
package dedupcache

import (
	"context"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/cache"
	"github.com/relaymesh/workcoordinator/pkg/envelope"
	"github.com/relaymesh/workcoordinator/pkg/errors"
)

// TTL is how long a seen message_id is remembered client-side. It is
// deliberately much shorter than "forever" (the ledger's real retention,
// §3) since this is a probabilistic fast-path, not the dedup mechanism
// itself.
const TTL = 24 * time.Hour

// Cache wraps a generic cache.Cache with dedup-specific key namespacing.
type Cache struct {
	backing cache.Cache
}

// New wraps backing.
func New(backing cache.Cache) *Cache {
	return &Cache{backing: backing}
}

func key(id envelope.MessageID) string {
	return "dedup:" + string(id)
}

// SeenRecently reports whether id was marked seen within TTL. A cache miss
// (including a backend outage) is treated as "not seen" — callers must
// still rely on the coordination function's ON CONFLICT admission guard,
// so a false negative here only costs an extra, harmlessly deduplicated
// admission attempt.
func (c *Cache) SeenRecently(ctx context.Context, id envelope.MessageID) bool {
	var marker bool
	err := c.backing.Get(ctx, key(id), &marker)
	return err == nil && marker
}

// MarkSeen records id as seen for TTL.
func (c *Cache) MarkSeen(ctx context.Context, id envelope.MessageID) error {
	if err := c.backing.Set(ctx, key(id), true, TTL); err != nil {
		return errors.Wrap(err, "failed to mark message seen in dedup cache")
	}
	return nil
}
