// Package metrics provides the OTel instruments the coordinator core emits.
//
// Instruments are created once against the global meter provider and handed
// out as a single Metrics struct so callers don't each re-derive names.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics bundles the counters and gauges described in spec §7
// ("consecutive_not_ready, buffered_messages, total_lease_renewals").
type Metrics struct {
	ConsecutiveDBNotReady    metric.Int64Gauge
	ConsecutiveTransportWait metric.Int64Gauge
	BufferedMessages         metric.Int64UpDownCounter
	TotalLeaseRenewals       metric.Int64Counter
	CoordinationCalls        metric.Int64Counter
	CoordinationCallErrors   metric.Int64Counter
	ClaimedOutboxWork        metric.Int64Counter
	ClaimedInboxWork         metric.Int64Counter
}

// New creates a Metrics bundle using the global meter provider under the
// instrumentation name "workcoordinator".
func New() (*Metrics, error) {
	meter := otel.Meter("workcoordinator")

	m := &Metrics{}
	var err error

	if m.ConsecutiveDBNotReady, err = meter.Int64Gauge(
		"workcoordinator.consecutive_database_not_ready_checks",
		metric.WithDescription("Consecutive coordination ticks skipped because the database was not ready"),
	); err != nil {
		return nil, err
	}

	if m.ConsecutiveTransportWait, err = meter.Int64Gauge(
		"workcoordinator.consecutive_transport_not_ready",
		metric.WithDescription("Consecutive publish attempts skipped because the transport was not ready"),
	); err != nil {
		return nil, err
	}

	if m.BufferedMessages, err = meter.Int64UpDownCounter(
		"workcoordinator.buffered_messages",
		metric.WithDescription("Outbox work items that found the transport not ready (incremented per occurrence, never decremented)"),
	); err != nil {
		return nil, err
	}

	if m.TotalLeaseRenewals, err = meter.Int64Counter(
		"workcoordinator.total_lease_renewals",
		metric.WithDescription("Lease renewals issued to keep buffered work owned by this instance"),
	); err != nil {
		return nil, err
	}

	if m.CoordinationCalls, err = meter.Int64Counter(
		"workcoordinator.coordination_calls",
		metric.WithDescription("Coordination function invocations"),
	); err != nil {
		return nil, err
	}

	if m.CoordinationCallErrors, err = meter.Int64Counter(
		"workcoordinator.coordination_call_errors",
		metric.WithDescription("Coordination function invocations that returned an error"),
	); err != nil {
		return nil, err
	}

	if m.ClaimedOutboxWork, err = meter.Int64Counter(
		"workcoordinator.claimed_outbox_work",
		metric.WithDescription("Outbox work items returned by the coordination function"),
	); err != nil {
		return nil, err
	}

	if m.ClaimedInboxWork, err = meter.Int64Counter(
		"workcoordinator.claimed_inbox_work",
		metric.WithDescription("Inbox work items returned by the coordination function"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Noop returns a Metrics bundle backed by the no-op meter provider, for
// tests and callers that don't want to wire OTel.
func Noop() *Metrics {
	meter := noop.NewMeterProvider().Meter("workcoordinator")
	g, _ := meter.Int64Gauge("noop.gauge")
	udc, _ := meter.Int64UpDownCounter("noop.updown")
	c, _ := meter.Int64Counter("noop.counter")
	return &Metrics{
		ConsecutiveDBNotReady:    g,
		ConsecutiveTransportWait: g,
		BufferedMessages:         udc,
		TotalLeaseRenewals:       c,
		CoordinationCalls:        c,
		CoordinationCallErrors:   c,
		ClaimedOutboxWork:        c,
		ClaimedInboxWork:         c,
	}
}

// Inc is a tiny helper so call sites read naturally: metrics.Inc(ctx, m.TotalLeaseRenewals, n).
func Inc(ctx context.Context, c metric.Int64Counter, n int64) {
	c.Add(ctx, n)
}
