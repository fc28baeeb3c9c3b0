// Package streamproc implements the ordered stream processor (spec §4.4,
// component C6): per-stream FIFO delivery of claimed inbox work to a
// handler, with up to max_concurrent_streams streams running in parallel
// and strict serial delivery within each stream.
package streamproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/relaymesh/workcoordinator/pkg/concurrency"
	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/unitofwork"
)

// Handler processes one claimed inbox item and reports success or a
// classified failure.
type Handler func(ctx context.Context, work coordination.InboxWork) error

// Config configures the processor's concurrency model.
type Config struct {
	// MaxConcurrentStreams bounds how many distinct streams may have a
	// worker goroutine running at once (§4.4 "Parallelism").
	MaxConcurrentStreams int
	// ParallelizeStreams, when false, collapses every stream onto a
	// single global worker for deterministic testing (§4.4, §9 open
	// question resolved in favor of implementing this flag).
	ParallelizeStreams bool
}

func (c Config) maxConcurrent() int64 {
	if !c.ParallelizeStreams {
		return 1
	}
	if c.MaxConcurrentStreams <= 0 {
		return 1
	}
	return int64(c.MaxConcurrentStreams)
}

// ScopeFactory creates a fresh unit-of-work scope used to report the
// outcome of handling one inbox item (§4.3/§4.4 integration: the stream
// processor reports outcomes through the same scoped strategy producers
// use).
type ScopeFactory func() *unitofwork.Scope

// stream holds one stream's pending queue and running state.
type stream struct {
	mu      sync.Mutex
	pending []coordination.InboxWork
	running bool
}

// Processor maintains one FIFO queue per stream_id and a bounded pool of
// worker goroutines that drain them.
type Processor struct {
	cfg     Config
	handler Handler
	scope   ScopeFactory
	sem     *concurrency.Semaphore
	log     *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
	wg      sync.WaitGroup
}

// New constructs a Processor. handler is invoked for each claimed inbox
// item; scope is called once per item to obtain the unit-of-work scope
// used to report its outcome.
func New(cfg Config, handler Handler, scope ScopeFactory, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:     cfg,
		handler: handler,
		scope:   scope,
		sem:     concurrency.NewSemaphore(cfg.maxConcurrent()),
		log:     log,
		streams: make(map[string]*stream),
	}
}

// Accept implements publisher.InboxHandoff: it appends each item to its
// stream's queue and spawns a worker if one isn't already draining that
// stream.
func (p *Processor) Accept(work []coordination.InboxWork) {
	for _, item := range work {
		p.enqueue(item)
	}
}

func (p *Processor) streamKeyFor(item coordination.InboxWork) string {
	if !p.cfg.ParallelizeStreams {
		return "__global__"
	}
	if item.StreamID != "" {
		return item.StreamID
	}
	// Unkeyed items have no ordering relationship with each other; give
	// each its own key so it can run concurrently with other unkeyed
	// items up to the semaphore's limit.
	return "__unkeyed__" + string(item.MessageID)
}

func (p *Processor) enqueue(item coordination.InboxWork) {
	key := p.streamKeyFor(item)

	p.mu.Lock()
	s, ok := p.streams[key]
	if !ok {
		s = &stream{}
		p.streams[key] = s
	}
	p.mu.Unlock()

	s.mu.Lock()
	s.pending = append(s.pending, item)
	alreadyRunning := s.running
	if !alreadyRunning {
		s.running = true
	}
	s.mu.Unlock()

	if alreadyRunning {
		return
	}

	p.wg.Add(1)
	concurrency.SafeGo(context.Background(), func() { p.drain(key, s) })
}

func (p *Processor) drain(key string, s *stream) {
	defer p.wg.Done()
	ctx := context.Background()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.log.ErrorContext(ctx, "failed to acquire stream worker slot", "stream", key, "error", err)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return
	}
	defer p.sem.Release(1)

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		item := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		p.process(ctx, item)
	}
}

func (p *Processor) process(ctx context.Context, item coordination.InboxWork) {
	err := p.handler(ctx, item)

	if p.scope == nil {
		return
	}
	scope := p.scope()
	defer scope.Dispose(ctx)

	if err != nil {
		reportErr := scope.QueueInboxFailure(coordination.InboxFailure{
			MessageID:     item.MessageID,
			Error:         err.Error(),
			FailureReason: classifyFailure(err),
		})
		if reportErr != nil {
			p.log.ErrorContext(ctx, "failed to queue inbox failure", "message_id", item.MessageID, "error", reportErr)
		}
		return
	}

	if reportErr := scope.QueueInboxCompletion(coordination.InboxCompletion{
		MessageID:       item.MessageID,
		CompletedStatus: coordination.StatusProcessed | coordination.StatusCompleted,
	}); reportErr != nil {
		p.log.ErrorContext(ctx, "failed to queue inbox completion", "message_id", item.MessageID, "error", reportErr)
	}
}

// classifiableFailure lets a handler opt into a specific §7 failure reason
// instead of the default Unknown classification.
type classifiableFailure interface {
	FailureReason() coordination.FailureReason
}

func classifyFailure(err error) coordination.FailureReason {
	var cf classifiableFailure
	if errors.As(err, &cf) {
		return cf.FailureReason()
	}
	return coordination.FailureReasonUnknown
}

// Wait blocks until every currently-running stream worker has drained its
// queue and exited. Intended for tests and graceful shutdown where the
// caller has already stopped feeding new work via Accept.
func (p *Processor) Wait() {
	p.wg.Wait()
}
