package unitofwork

import (
	"context"
	"testing"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/test"
)

type fakeCoordinator struct {
	calls    int
	lastReq  coordination.Request
	response coordination.WorkBatch
	err      error
}

func (f *fakeCoordinator) Call(ctx context.Context, req coordination.Request) (*coordination.WorkBatch, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &f.response, nil
}

type fakeSink struct {
	accepted []coordination.OutboxWork
}

func (f *fakeSink) Accept(work []coordination.OutboxWork) {
	f.accepted = append(f.accepted, work...)
}

type ScopeSuite struct {
	*test.Suite
	coord *fakeCoordinator
	sink  *fakeSink
	scope *Scope
}

func TestScopeSuite(t *testing.T) {
	test.Run(t, &ScopeSuite{Suite: test.NewSuite()})
}

func (s *ScopeSuite) SetupTest() {
	s.Suite.SetupTest()
	s.coord = &fakeCoordinator{}
	s.sink = &fakeSink{}
	s.scope = NewScope(s.coord, s.sink, Identity{InstanceID: "i1"}, nil)
}

func (s *ScopeSuite) TestFlushWithNoQueuedWorkSkipsCoordinationCall() {
	batch, err := s.scope.Flush(s.Ctx, coordination.FlagNone)
	s.NoError(err)
	s.True(batch.IsEmpty())
	s.Equal(0, s.coord.calls)
}

func (s *ScopeSuite) TestFlushSendsQueuedWorkAndClearsOnSuccess() {
	s.coord.response = coordination.WorkBatch{
		OutboxWork: []coordination.OutboxWork{{MessageID: "msg-1"}},
	}

	s.NoError(s.scope.QueueOutboxMessage(coordination.NewOutboxMessage{MessageID: "msg-1", Destination: "orders"}))

	batch, err := s.scope.Flush(s.Ctx, coordination.FlagNone)
	s.NoError(err)
	s.Len(batch.OutboxWork, 1)
	s.Len(s.coord.lastReq.NewOutboxMessages, 1)
	s.Len(s.sink.accepted, 1)

	// Queues should be clear; a second flush with nothing queued should not
	// call the coordinator again.
	_, err = s.scope.Flush(s.Ctx, coordination.FlagNone)
	s.NoError(err)
	s.Equal(1, s.coord.calls)
}

func (s *ScopeSuite) TestQueueAfterDisposeFails() {
	s.scope.Dispose(s.Ctx)
	err := s.scope.QueueOutboxMessage(coordination.NewOutboxMessage{MessageID: "msg-1"})
	s.Error(err)
}

func (s *ScopeSuite) TestDisposeSwallowsFlushError() {
	s.coord.err = coordination.ErrFatalCoordination(nil)
	s.NoError(s.scope.QueueOutboxMessage(coordination.NewOutboxMessage{MessageID: "msg-1"}))

	// Dispose must not panic or propagate the flush error, but it must
	// still have attempted the flush rather than silently skipping it.
	s.scope.Dispose(s.Ctx)
	s.Equal(1, s.coord.calls)
}

func (s *ScopeSuite) TestDisposeFlushesQueuedWorkBeforeMarkingDisposed() {
	s.coord.response = coordination.WorkBatch{
		InboxWork: []coordination.InboxWork{{MessageID: "msg-1"}},
	}
	s.NoError(s.scope.QueueInboxCompletion(coordination.InboxCompletion{MessageID: "msg-1"}))

	s.scope.Dispose(s.Ctx)

	s.Equal(1, s.coord.calls)
	s.Len(s.coord.lastReq.InboxCompletions, 1)

	// Disposing again must be a no-op, not a second flush.
	s.scope.Dispose(s.Ctx)
	s.Equal(1, s.coord.calls)
}
