// Package memory is an in-process transport adapter backed by buffered Go
// channels, one per destination address. It is ready until closed and never
// drops a published message as long as its buffer isn't full, making it
// the adapter used for deterministic tests of the publisher worker and
// ordered stream processor.
package memory

import (
	"context"
	"sync"

	"github.com/relaymesh/workcoordinator/pkg/transport"
)

// Config configures the memory transport.
type Config struct {
	// BufferSize is the channel capacity created per destination address.
	BufferSize int
}

type envelope struct {
	destination transport.Destination
	payload     []byte
	headers     map[string]string
}

// Transport implements transport.Transport entirely in memory.
type Transport struct {
	cfg Config

	mu    sync.Mutex
	chans map[string]chan envelope
	subs  map[string][]*subscription
	closed bool
}

// New creates a ready memory transport.
func New(cfg Config) *Transport {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &Transport{
		cfg:   cfg,
		chans: make(map[string]chan envelope),
		subs:  make(map[string][]*subscription),
	}
}

func (t *Transport) channelFor(address string) chan envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.chans[address]
	if !ok {
		ch = make(chan envelope, t.cfg.BufferSize)
		t.chans[address] = ch
	}
	return ch
}

// IsReady reports true until Close is called: the memory transport has no
// external dependency that can go down.
func (t *Transport) IsReady(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Publish enqueues payload onto the destination's channel. It never
// blocks indefinitely: if the buffer is full the publish fails with a
// PublishResult whose Reason is "buffer_full", which the publisher worker
// records as a transport error.
func (t *Transport) Publish(ctx context.Context, destination transport.Destination, payload []byte, headers map[string]string) transport.PublishResult {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.PublishResult{Success: false, Err: transport.ErrNotReady(nil), Reason: "closed"}
	}
	t.mu.Unlock()

	ch := t.channelFor(destination.Address)
	select {
	case ch <- envelope{destination: destination, payload: payload, headers: headers}:
		return transport.PublishResult{Success: true}
	case <-ctx.Done():
		return transport.PublishResult{Success: false, Err: ctx.Err(), Reason: "context_canceled"}
	default:
		return transport.PublishResult{Success: false, Err: transport.ErrPublishFailed(nil), Reason: "buffer_full"}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Subscribe spawns a goroutine that drains destination's channel and
// invokes handler for each delivered payload until the returned
// Subscription is closed or ctx is canceled.
func (t *Transport) Subscribe(ctx context.Context, destination transport.Destination, handler transport.Handler) (transport.Subscription, error) {
	ch := t.channelFor(destination.Address)
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	t.mu.Lock()
	t.subs[destination.Address] = append(t.subs[destination.Address], sub)
	t.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-sctx.Done():
				return
			case env := <-ch:
				_ = handler(sctx, env.destination, env.payload, env.headers)
			}
		}
	}()

	return sub, nil
}

// Capabilities reports the memory transport as publish/subscribe and
// ordered (FIFO per channel); it is not durable across process restarts so
// it does not advertise Reliable.
func (t *Transport) Capabilities() transport.Capability {
	return transport.CapabilityPublishSubscribe | transport.CapabilityOrdered
}

// Close marks the transport closed; in-flight subscriptions are left to
// their owning callers to close.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
