// Package nats adapts github.com/nats-io/nats.go to the transport.Transport
// contract. Destination.Address is the subject.
package nats

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/relaymesh/workcoordinator/pkg/transport"
)

// Config configures the NATS adapter.
type Config struct {
	URL string
	// QueueGroup, when set, load-balances Subscribe across every
	// subscriber in the group (§6 "group parameter used for load
	// balancing").
	QueueGroup string
}

// Transport is a NATS-backed transport.Transport over a single connection.
type Transport struct {
	cfg  Config
	conn *nats.Conn
}

// New connects to cfg.URL.
func New(cfg Config) (*Transport, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, transport.ErrConnectionFailed(err)
	}
	return &Transport{cfg: cfg, conn: conn}, nil
}

// IsReady reports the connection's status.
func (t *Transport) IsReady(ctx context.Context) bool {
	return t.conn.IsConnected()
}

// Publish sends payload on destination.Address. Headers are attached via
// NATS message headers (requires a server supporting them); callers on a
// plain core-NATS deployment should leave headers empty.
func (t *Transport) Publish(ctx context.Context, destination transport.Destination, payload []byte, headers map[string]string) transport.PublishResult {
	msg := &nats.Msg{Subject: destination.Address, Data: payload}
	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}
	if err := t.conn.PublishMsg(msg); err != nil {
		return transport.PublishResult{Success: false, Err: err, Reason: "nats_publish_failed"}
	}
	return transport.PublishResult{Success: true}
}

// Subscribe binds to destination.Address, using cfg.QueueGroup for
// load-balanced delivery when set.
func (t *Transport) Subscribe(ctx context.Context, destination transport.Destination, handler transport.Handler) (transport.Subscription, error) {
	cb := func(msg *nats.Msg) {
		headers := map[string]string{}
		for k := range msg.Header {
			headers[k] = msg.Header.Get(k)
		}
		_ = handler(ctx, destination, msg.Data, headers)
	}

	var sub *nats.Subscription
	var err error
	if t.cfg.QueueGroup != "" {
		sub, err = t.conn.QueueSubscribe(destination.Address, t.cfg.QueueGroup, cb)
	} else {
		sub, err = t.conn.Subscribe(destination.Address, cb)
	}
	if err != nil {
		return nil, transport.ErrSubscribeFailed(err)
	}
	return &subscription{sub: sub}, nil
}

type subscription struct {
	sub *nats.Subscription
}

func (s *subscription) Close() error {
	return s.sub.Unsubscribe()
}

// Capabilities reports core NATS as publish/subscribe and request/response
// capable (native NATS request-reply); it does not advertise Reliable or
// Ordered since core NATS is at-most-once and unordered across subjects.
func (t *Transport) Capabilities() transport.Capability {
	return transport.CapabilityPublishSubscribe | transport.CapabilityRequestResponse
}

// Close closes the connection without draining pending messages.
func (t *Transport) Close() error {
	t.conn.Close()
	return nil
}
