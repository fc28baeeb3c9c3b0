// Package unitofwork implements the scoped unit-of-work strategy (spec
// §4.3, component C5): a producer-side batcher that queues new messages
// and outcomes, then flushes them in one coordination call on scope exit.
package unitofwork

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/errors"
)

// OutboxSink receives outbox work immediately after a successful flush, for
// low-latency hand-off into the publisher worker's shared channel (§4.3
// "any outbox work written immediately to shared publisher channel").
type OutboxSink interface {
	Accept(work []coordination.OutboxWork)
}

// Scope is a batcher that can be flushed repeatedly until it is disposed.
// A Scope must not be reused after Dispose; every queue_* call after
// disposal fails with CodeDisposed.
type Scope struct {
	coordinator coordination.Coordinator
	sink        OutboxSink
	identity    Identity
	log         *slog.Logger

	mu               sync.Mutex
	newOutbox        []coordination.NewOutboxMessage
	newInbox         []coordination.NewInboxMessage
	outboxCompletion []coordination.OutboxCompletion
	inboxCompletion  []coordination.InboxCompletion
	outboxFailure    []coordination.OutboxFailure
	inboxFailure     []coordination.InboxFailure
	disposed         bool
	disposeOnce      sync.Once
}

// Identity carries the caller identity fields every coordination call
// needs (§4.1 request fields instance_id/service_name/host/process_id) plus
// the lease/partition parameters this scope's flush should use.
type Identity struct {
	InstanceID      string
	ServiceName     string
	Host            string
	ProcessID       int
	LeaseSeconds    int
	PartitionCount  int
	StaleThresholdS int
	BatchLimit      int
}

// CodeDisposed is returned when a Scope is used after disposal.
const CodeDisposed = "UOW_DISPOSED"

// ErrDisposed reports a use of a disposed Scope.
func ErrDisposed() *errors.AppError {
	return errors.New(CodeDisposed, "unit of work scope has already been disposed", nil)
}

// NewScope creates a fresh, single-use unit-of-work scope.
func NewScope(coordinator coordination.Coordinator, sink OutboxSink, identity Identity, log *slog.Logger) *Scope {
	if log == nil {
		log = slog.Default()
	}
	return &Scope{coordinator: coordinator, sink: sink, identity: identity, log: log}
}

func (s *Scope) checkDisposed() error {
	if s.disposed {
		return ErrDisposed()
	}
	return nil
}

// QueueOutboxMessage queues a new outbox row for admission on the next
// flush.
func (s *Scope) QueueOutboxMessage(msg coordination.NewOutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.newOutbox = append(s.newOutbox, msg)
	return nil
}

// QueueInboxMessage queues a new inbox row for admission on the next flush.
func (s *Scope) QueueInboxMessage(msg coordination.NewInboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.newInbox = append(s.newInbox, msg)
	return nil
}

// QueueOutboxCompletion queues an outbox completion outcome.
func (s *Scope) QueueOutboxCompletion(c coordination.OutboxCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.outboxCompletion = append(s.outboxCompletion, c)
	return nil
}

// QueueInboxCompletion queues an inbox completion outcome.
func (s *Scope) QueueInboxCompletion(c coordination.InboxCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.inboxCompletion = append(s.inboxCompletion, c)
	return nil
}

// QueueOutboxFailure queues an outbox failure outcome.
func (s *Scope) QueueOutboxFailure(f coordination.OutboxFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.outboxFailure = append(s.outboxFailure, f)
	return nil
}

// QueueInboxFailure queues an inbox failure outcome.
func (s *Scope) QueueInboxFailure(f coordination.InboxFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDisposed(); err != nil {
		return err
	}
	s.inboxFailure = append(s.inboxFailure, f)
	return nil
}

// Flush calls the coordination function once with everything queued so
// far, and clears the queues only if the call succeeds (§4.3 "clear lists
// only after success"). If all six lists are empty it returns an empty
// WorkBatch without calling the coordination function at all.
func (s *Scope) Flush(ctx context.Context, flags coordination.Flags) (*coordination.WorkBatch, error) {
	s.mu.Lock()
	if err := s.checkDisposed(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	req := coordination.Request{
		InstanceID:        s.identity.InstanceID,
		ServiceName:       s.identity.ServiceName,
		Host:              s.identity.Host,
		ProcessID:         s.identity.ProcessID,
		LeaseDurationS:    s.identity.LeaseSeconds,
		PartitionCount:    s.identity.PartitionCount,
		StaleThresholdS:   s.identity.StaleThresholdS,
		BatchLimit:        s.identity.BatchLimit,
		Flags:             flags,
		NewOutboxMessages: append([]coordination.NewOutboxMessage(nil), s.newOutbox...),
		NewInboxMessages:  append([]coordination.NewInboxMessage(nil), s.newInbox...),
		OutboxCompletions: append([]coordination.OutboxCompletion(nil), s.outboxCompletion...),
		InboxCompletions:  append([]coordination.InboxCompletion(nil), s.inboxCompletion...),
		OutboxFailures:    append([]coordination.OutboxFailure(nil), s.outboxFailure...),
		InboxFailures:     append([]coordination.InboxFailure(nil), s.inboxFailure...),
	}
	s.mu.Unlock()

	if req.IsEmpty() {
		return &coordination.WorkBatch{}, nil
	}

	batch, err := s.coordinator.Call(ctx, req)
	if err != nil {
		// Queued work is retained for retry on the next flush (§4.3 "Error
		// handling").
		return nil, err
	}

	s.mu.Lock()
	s.newOutbox = nil
	s.newInbox = nil
	s.outboxCompletion = nil
	s.inboxCompletion = nil
	s.outboxFailure = nil
	s.inboxFailure = nil
	s.mu.Unlock()

	if s.sink != nil && len(batch.OutboxWork) > 0 {
		s.sink.Accept(batch.OutboxWork)
	}
	return batch, nil
}

// Dispose flushes any unflushed work and marks the scope unusable. If the
// final flush fails, the error is logged and swallowed (§4.3 "Lifetime": a
// disposed scope with unflushed work that fails to flush one last time
// does not propagate that error to the caller, who has typically already
// moved past the scope's defer).
func (s *Scope) Dispose(ctx context.Context) {
	s.disposeOnce.Do(func() {
		// Flush while the scope is still usable: Flush itself calls
		// checkDisposed, so disposed must not be set until after this
		// call returns, or the final flush would short-circuit and
		// silently drop everything queued since the last successful
		// flush.
		if _, err := s.Flush(ctx, coordination.FlagNone); err != nil {
			s.log.ErrorContext(ctx, "failed to flush unit of work scope on dispose", "error", err)
		}

		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()
	})
}
