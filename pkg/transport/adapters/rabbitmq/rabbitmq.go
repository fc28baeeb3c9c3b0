// Package rabbitmq adapts github.com/rabbitmq/amqp091-go to the
// transport.Transport contract. Destination.Address is the exchange name
// and Destination.RoutingKey the binding/routing key; an empty exchange
// name publishes directly to the queue named by RoutingKey (AMQP default
// exchange semantics).
package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/relaymesh/workcoordinator/pkg/transport"
)

// Config configures the RabbitMQ adapter.
type Config struct {
	URL string
	// QueueName is the queue every Subscribe call consumes; when empty,
	// Subscribe consumes the queue named by the destination's RoutingKey.
	// The adapter does not declare or bind queues.
	QueueName string
}

// Transport is a RabbitMQ-backed transport.Transport over a single AMQP
// connection and channel.
type Transport struct {
	cfg  Config
	conn *amqp.Connection
	ch   *amqp.Channel

	mu     sync.Mutex
	closed bool
}

// New dials cfg.URL and opens a channel.
func New(cfg Config) (*Transport, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, transport.ErrConnectionFailed(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, transport.ErrConnectionFailed(err)
	}
	return &Transport{cfg: cfg, conn: conn, ch: ch}, nil
}

// IsReady reports whether the connection and channel are still open.
func (t *Transport) IsReady(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && !t.conn.IsClosed()
}

// Publish sends payload to destination via amqp.Channel.PublishWithContext.
func (t *Transport) Publish(ctx context.Context, destination transport.Destination, payload []byte, headers map[string]string) transport.PublishResult {
	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err := t.ch.PublishWithContext(ctx, destination.Address, destination.RoutingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
		Headers:     table,
	})
	if err != nil {
		return transport.PublishResult{Success: false, Err: err, Reason: "amqp_publish_failed"}
	}
	return transport.PublishResult{Success: true}
}

// Subscribe consumes cfg.QueueName (or destination.RoutingKey when that is
// empty), which must already exist, invoking handler for each delivery. A nil handler return acks the
// delivery; an error nacks it for requeue.
func (t *Transport) Subscribe(ctx context.Context, destination transport.Destination, handler transport.Handler) (transport.Subscription, error) {
	queue := t.cfg.QueueName
	if queue == "" {
		queue = destination.RoutingKey
	}

	deliveries, err := t.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, transport.ErrSubscribeFailed(err)
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-sctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				headers := make(map[string]string, len(d.Headers))
				for k, v := range d.Headers {
					if s, ok := v.(string); ok {
						headers[k] = s
					}
				}
				if err := handler(sctx, destination, d.Body, headers); err != nil {
					_ = d.Nack(false, true)
				} else {
					_ = d.Ack(false)
				}
			}
		}
	}()

	return sub, nil
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

// Capabilities reports RabbitMQ as publish/subscribe, reliable (publisher
// confirms + durable queues when configured by the caller), and
// request/response capable (via reply-to + correlation id).
func (t *Transport) Capabilities() transport.Capability {
	return transport.CapabilityPublishSubscribe | transport.CapabilityReliable | transport.CapabilityRequestResponse
}

// Close shuts down the channel and connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if err := t.ch.Close(); err != nil {
		return err
	}
	return t.conn.Close()
}
