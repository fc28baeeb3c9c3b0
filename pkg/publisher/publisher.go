// Package publisher implements the publisher worker (spec §4.2, component
// C4): two concurrent loops sharing a channel of claimed outbox work. The
// coordinator loop polls the coordination function on a fixed interval and
// feeds the channel; the publisher loop drains it and invokes a
// transport.PublishStrategy, reporting outcomes back to the coordinator
// loop's accumulators.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/envelope"
	"github.com/relaymesh/workcoordinator/pkg/metrics"
	"github.com/relaymesh/workcoordinator/pkg/resilience"
	"github.com/relaymesh/workcoordinator/pkg/transport"
)

// Config configures the worker's polling cadence and lease parameters
// (spec §6 "Configuration keys").
type Config struct {
	InstanceID      string
	ServiceName     string
	Host            string
	ProcessID       int
	PollingInterval time.Duration `env:"POLLING_INTERVAL_MS" env-default:"1000"`
	LeaseSeconds    int           `env:"LEASE_SECONDS" env-default:"300"`
	StaleThresholdS int           `env:"STALE_THRESHOLD_SECONDS" env-default:"600"`
	PartitionCount  int           `env:"PARTITION_COUNT" env-default:"10000"`
	BatchLimit      int           `env:"BATCH_LIMIT" env-default:"100"`
	// ChannelSize bounds the shared outbox-work channel for backpressure.
	// Zero or a negative value selects a capacity of 1024; the channel is
	// always bounded, and the coordinator loop blocks while it is full.
	ChannelSize int
	// NotReadyEscalateAfter is how many consecutive not-ready checks
	// (database or transport) escalate the log level from Info to Warning
	// (§4.2 "escalate Warning after N consecutive skips").
	NotReadyEscalateAfter int `env:"NOT_READY_ESCALATE_AFTER" env-default:"5"`
}

func (c Config) batchLimit() int {
	if c.BatchLimit <= 0 {
		return 100
	}
	return c.BatchLimit
}

func (c Config) escalateAfter() int {
	if c.NotReadyEscalateAfter <= 0 {
		return 5
	}
	return c.NotReadyEscalateAfter
}

// accumulator collects outcomes reported by the publisher loop between
// coordinator loop ticks. It is drained by swap, not per-item take, so the
// publisher loop never blocks waiting on the coordinator loop (§4.2
// "Concurrency contract").
type accumulator struct {
	mu                  sync.Mutex
	outboxCompletions   []coordination.OutboxCompletion
	outboxFailures      []coordination.OutboxFailure
	inboxCompletions    []coordination.InboxCompletion
	inboxFailures       []coordination.InboxFailure
	renewOutboxLeaseIDs []envelope.MessageID
}

func (a *accumulator) addOutboxCompletion(c coordination.OutboxCompletion) {
	a.mu.Lock()
	a.outboxCompletions = append(a.outboxCompletions, c)
	a.mu.Unlock()
}

func (a *accumulator) addOutboxFailure(f coordination.OutboxFailure) {
	a.mu.Lock()
	a.outboxFailures = append(a.outboxFailures, f)
	a.mu.Unlock()
}

func (a *accumulator) addInboxCompletion(c coordination.InboxCompletion) {
	a.mu.Lock()
	a.inboxCompletions = append(a.inboxCompletions, c)
	a.mu.Unlock()
}

func (a *accumulator) addInboxFailure(f coordination.InboxFailure) {
	a.mu.Lock()
	a.inboxFailures = append(a.inboxFailures, f)
	a.mu.Unlock()
}

func (a *accumulator) addRenewal(id envelope.MessageID) {
	a.mu.Lock()
	a.renewOutboxLeaseIDs = append(a.renewOutboxLeaseIDs, id)
	a.mu.Unlock()
}

// drain returns and clears every accumulated slice in one locked section.
func (a *accumulator) drain() (
	outboxCompletions []coordination.OutboxCompletion,
	outboxFailures []coordination.OutboxFailure,
	inboxCompletions []coordination.InboxCompletion,
	inboxFailures []coordination.InboxFailure,
	renewOutboxLeaseIDs []envelope.MessageID,
) {
	a.mu.Lock()
	defer a.mu.Unlock()
	outboxCompletions, a.outboxCompletions = a.outboxCompletions, nil
	outboxFailures, a.outboxFailures = a.outboxFailures, nil
	inboxCompletions, a.inboxCompletions = a.inboxCompletions, nil
	inboxFailures, a.inboxFailures = a.inboxFailures, nil
	renewOutboxLeaseIDs, a.renewOutboxLeaseIDs = a.renewOutboxLeaseIDs, nil
	return
}

// InboxHandoff receives claimed inbox work from the coordinator loop. The
// ordered stream processor (pkg/streamproc) implements this.
type InboxHandoff interface {
	Accept(work []coordination.InboxWork)
}

// Worker runs the publisher worker's coordinator loop and publisher loop.
type Worker struct {
	cfg         Config
	coordinator coordination.Coordinator
	strategy    transport.PublishStrategy
	destination func(work coordination.OutboxWork) transport.Destination
	dbReady     transport.ReadinessCheck
	inbox       InboxHandoff
	metrics     *metrics.Metrics
	log         *slog.Logger

	work  chan coordination.OutboxWork
	accum accumulator
	cb    *resilience.CircuitBreaker

	consecutiveDBNotReady        int32
	consecutiveTransportNotReady int32
	bufferedMessages             int64
	totalLeaseRenewals           int64
}

// New constructs a Worker. destination maps a claimed outbox row to the
// transport.Destination it should be published to (the outbox row already
// carries a logical Destination string; callers translate it to whatever
// shape their transport adapter expects).
func New(
	cfg Config,
	coord coordination.Coordinator,
	strategy transport.PublishStrategy,
	destination func(work coordination.OutboxWork) transport.Destination,
	dbReady transport.ReadinessCheck,
	inbox InboxHandoff,
	m *metrics.Metrics,
	log *slog.Logger,
) *Worker {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	chanSize := cfg.ChannelSize
	if chanSize <= 0 {
		chanSize = 1024
	}
	return &Worker{
		cfg:         cfg,
		coordinator: coord,
		strategy:    strategy,
		destination: destination,
		dbReady:     dbReady,
		inbox:       inbox,
		metrics:     m,
		log:         log,
		work:        make(chan coordination.OutboxWork, chanSize),
		cb: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "coordination-call",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
			},
		}),
	}
}

// Run starts both loops and blocks until ctx is canceled and both have
// exited. On cancellation the coordinator loop stops polling and closes the
// channel, and the publisher loop moves any items still in the channel to
// the lease-renewal accumulator instead of publishing them (§4.2
// "Concurrency contract", "on cancellation").
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w.coordinatorLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		w.publisherLoop(ctx)
	}()

	wg.Wait()
}

func (w *Worker) coordinatorLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollingInterval)
	defer ticker.Stop()
	defer close(w.work)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.dbReady != nil && !w.dbReady.IsReady(ctx) {
		n := atomic.AddInt32(&w.consecutiveDBNotReady, 1)
		w.logNotReady(ctx, "database", int(n))
		if w.metrics != nil {
			w.metrics.ConsecutiveDBNotReady.Record(ctx, int64(n))
		}
		return
	}
	atomic.StoreInt32(&w.consecutiveDBNotReady, 0)

	outboxCompletions, outboxFailures, inboxCompletions, inboxFailures, renewals := w.accum.drain()

	req := coordination.Request{
		InstanceID:          w.cfg.InstanceID,
		ServiceName:         w.cfg.ServiceName,
		Host:                w.cfg.Host,
		ProcessID:           w.cfg.ProcessID,
		Now:                 time.Now().UTC(),
		LeaseDurationS:       w.cfg.LeaseSeconds,
		PartitionCount:       w.cfg.PartitionCount,
		StaleThresholdS:      w.cfg.StaleThresholdS,
		Flags:                coordination.FlagNone,
		BatchLimit:           w.cfg.batchLimit(),
		OutboxCompletions:    outboxCompletions,
		OutboxFailures:       outboxFailures,
		InboxCompletions:     inboxCompletions,
		InboxFailures:        inboxFailures,
		RenewOutboxLeaseIDs:  renewals,
	}

	var batch *coordination.WorkBatch
	err := w.cb.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		batch, callErr = w.coordinator.Call(ctx, req)
		return callErr
	})
	if err != nil {
		// Fatal coordination error: logged with full request params so the
		// operator can see exactly what would have been reported; nothing
		// was persisted, so the drained accumulators are requeued and
		// retried on the next tick (§7 "Fatal coordination error").
		w.log.ErrorContext(ctx, "coordination call failed", "error", err, "request", req)
		w.requeue(outboxCompletions, outboxFailures, inboxCompletions, inboxFailures, renewals)
		if w.metrics != nil {
			w.metrics.CoordinationCallErrors.Add(ctx, 1)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.CoordinationCalls.Add(ctx, 1)
		w.metrics.ClaimedOutboxWork.Add(ctx, int64(len(batch.OutboxWork)))
		w.metrics.ClaimedInboxWork.Add(ctx, int64(len(batch.InboxWork)))
	}

	sortOutboxWork(batch.OutboxWork)
	for _, item := range batch.OutboxWork {
		select {
		case w.work <- item:
		case <-ctx.Done():
			return
		}
	}

	if w.inbox != nil && len(batch.InboxWork) > 0 {
		w.inbox.Accept(batch.InboxWork)
	}
}

// requeue restores drained accumulator contents after a failed
// coordination call so nothing reported this tick is lost.
func (w *Worker) requeue(
	outboxCompletions []coordination.OutboxCompletion,
	outboxFailures []coordination.OutboxFailure,
	inboxCompletions []coordination.InboxCompletion,
	inboxFailures []coordination.InboxFailure,
	renewals []envelope.MessageID,
) {
	for _, c := range outboxCompletions {
		w.accum.addOutboxCompletion(c)
	}
	for _, f := range outboxFailures {
		w.accum.addOutboxFailure(f)
	}
	for _, c := range inboxCompletions {
		w.accum.addInboxCompletion(c)
	}
	for _, f := range inboxFailures {
		w.accum.addInboxFailure(f)
	}
	for _, id := range renewals {
		w.accum.addRenewal(id)
	}
}

func (w *Worker) logNotReady(ctx context.Context, what string, consecutive int) {
	if consecutive >= w.cfg.escalateAfter() {
		w.log.WarnContext(ctx, what+" not ready, skipping coordination call", "consecutive", consecutive)
		return
	}
	w.log.InfoContext(ctx, what+" not ready, skipping coordination call", "consecutive", consecutive)
}

func (w *Worker) publisherLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drainRemaining()
			return
		case item, ok := <-w.work:
			if !ok {
				return
			}
			w.publishOne(ctx, item)
		}
	}
}

// drainRemaining queues a lease renewal for anything still buffered when
// the worker is canceled. Nothing sends the accumulator after Run returns,
// so those renewals are not reported; the rows stay in the outbox and
// become claimable again once their leases expire.
func (w *Worker) drainRemaining() {
	for {
		select {
		case item, ok := <-w.work:
			if !ok {
				return
			}
			w.accum.addRenewal(item.MessageID)
		default:
			return
		}
	}
}

func (w *Worker) publishOne(ctx context.Context, item coordination.OutboxWork) {
	if !w.strategy.IsReady(ctx) {
		n := atomic.AddInt32(&w.consecutiveTransportNotReady, 1)
		atomic.AddInt64(&w.bufferedMessages, 1)
		atomic.AddInt64(&w.totalLeaseRenewals, 1)
		w.accum.addRenewal(item.MessageID)
		w.logNotReady(ctx, "transport", int(n))
		if w.metrics != nil {
			w.metrics.ConsecutiveTransportWait.Record(ctx, int64(n))
			w.metrics.BufferedMessages.Add(ctx, 1)
			w.metrics.TotalLeaseRenewals.Add(ctx, 1)
		}
		return
	}
	atomic.StoreInt32(&w.consecutiveTransportNotReady, 0)

	dest := w.destination(item)
	result := w.strategy.Publish(ctx, dest, item.EventData, headersFor(item))

	if result.Success {
		status := coordination.Status(result.CompletedStatus)
		if status == 0 {
			status = coordination.StatusPublished | coordination.StatusCompleted
		}
		w.accum.addOutboxCompletion(coordination.OutboxCompletion{
			MessageID:       item.MessageID,
			CompletedStatus: status,
		})
		return
	}

	reason := coordination.FailureReasonTransportError
	if result.Reason == "" || result.Reason == "unknown" {
		reason = coordination.FailureReasonUnknown
	}
	errMsg := "unknown publish failure"
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	w.accum.addOutboxFailure(coordination.OutboxFailure{
		MessageID:     item.MessageID,
		Error:         errMsg,
		FailureReason: reason,
	})
}

func headersFor(item coordination.OutboxWork) map[string]string {
	return map[string]string{
		"message-id":    string(item.MessageID),
		"envelope-type": item.EnvelopeType,
	}
}

func sortOutboxWork(items []coordination.OutboxWork) {
	// Ascending message_id order (§4.2 "sorted ascending by message_id").
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].MessageID < items[j-1].MessageID; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
