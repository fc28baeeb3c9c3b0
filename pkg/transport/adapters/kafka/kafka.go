// Package kafka adapts github.com/IBM/sarama to the transport.Transport
// contract. Destination.Address is the Kafka topic; Destination.RoutingKey,
// when set, becomes the partition key.
package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/relaymesh/workcoordinator/pkg/transport"
)

// Config configures the Kafka adapter.
type Config struct {
	Brokers []string
	// ConsumerGroup is used for every Subscribe call issued against this
	// Transport.
	ConsumerGroup string
}

// Transport is a Kafka-backed transport.Transport built on a sarama sync
// producer for publishing and a sarama consumer group for subscribing.
type Transport struct {
	cfg      Config
	client   sarama.Client
	producer sarama.SyncProducer

	mu     sync.Mutex
	closed bool
}

// New dials brokers and returns a ready Transport.
func New(cfg Config) (*Transport, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, transport.ErrConnectionFailed(err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, transport.ErrConnectionFailed(err)
	}

	return &Transport{cfg: cfg, client: client, producer: producer}, nil
}

// IsReady reports whether the underlying client can still reach the
// cluster's brokers.
func (t *Transport) IsReady(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	for _, broker := range t.client.Brokers() {
		if connected, _ := broker.Connected(); connected {
			return true
		}
	}
	return false
}

// Publish sends payload to the topic named by destination.Address, keyed
// by destination.RoutingKey when present.
func (t *Transport) Publish(ctx context.Context, destination transport.Destination, payload []byte, headers map[string]string) transport.PublishResult {
	msg := &sarama.ProducerMessage{
		Topic: destination.Address,
		Value: sarama.ByteEncoder(payload),
	}
	if destination.RoutingKey != "" {
		msg.Key = sarama.StringEncoder(destination.RoutingKey)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	if _, _, err := t.producer.SendMessage(msg); err != nil {
		return transport.PublishResult{Success: false, Err: err, Reason: "kafka_send_failed"}
	}
	return transport.PublishResult{Success: true}
}

// Subscribe starts a consumer group session against destination.Address
// and invokes handler for each delivered record until the returned
// Subscription is closed.
func (t *Transport) Subscribe(ctx context.Context, destination transport.Destination, handler transport.Handler) (transport.Subscription, error) {
	group, err := sarama.NewConsumerGroupFromClient(t.cfg.ConsumerGroup, t.client)
	if err != nil {
		return nil, transport.ErrSubscribeFailed(err)
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{group: group, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		consumerHandler := &groupHandler{destination: destination, handler: handler}
		for {
			if sctx.Err() != nil {
				return
			}
			if err := group.Consume(sctx, []string{destination.Address}, consumerHandler); err != nil {
				if sctx.Err() != nil {
					return
				}
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return s.group.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler, delivering each
// claimed message to the transport.Handler and marking it consumed on a
// nil return (§6 "at-least-once" semantics; redelivery happens when the
// handler returns an error and the session rebalances).
type groupHandler struct {
	destination transport.Destination
	handler     transport.Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		headers := make(map[string]string, len(msg.Headers))
		for _, rh := range msg.Headers {
			headers[string(rh.Key)] = string(rh.Value)
		}
		if err := h.handler(sess.Context(), h.destination, msg.Value, headers); err == nil {
			sess.MarkMessage(msg, "")
		}
	}
	return nil
}

// Capabilities reports Kafka as publish/subscribe, reliable (broker
// replication + offset commit), and ordered within a partition.
func (t *Transport) Capabilities() transport.Capability {
	return transport.CapabilityPublishSubscribe | transport.CapabilityReliable | transport.CapabilityOrdered
}

// Close releases the producer and client.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if err := t.producer.Close(); err != nil {
		return err
	}
	return t.client.Close()
}
