// Package coordination defines the contract for the single atomic
// server-side coordination call (spec §4.1, component C3): the request
// shape, the claimed-work response shape, and the Coordinator interface
// that callers (the publisher worker, the scoped unit-of-work strategy)
// invoke once per round trip.
//
// Concrete implementations live in sub-packages (pkg/coordination/postgres
// is the only one shipped here), mirroring the adapter layout the rest of
// this module's sibling packages (pkg/transport, pkg/cache) use.
package coordination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/envelope"
)

// Flags is a bitmask of caller-requested behaviors passed through to the
// coordination function (§4.1 request field "flags"). None is the steady
// state the publisher worker uses on every tick.
type Flags uint32

const (
	FlagNone Flags = 0
	// FlagDebug requests server-side NOTICE emission (§6 debug_mode).
	FlagDebug Flags = 1 << 0
)

// OutboxCompletion reports a successfully published outbox record.
type OutboxCompletion struct {
	MessageID       envelope.MessageID `json:"message_id"`
	CompletedStatus Status             `json:"completed_status"`
}

// InboxCompletion reports a successfully processed inbox record.
type InboxCompletion struct {
	MessageID       envelope.MessageID `json:"message_id"`
	CompletedStatus Status             `json:"completed_status"`
}

// OutboxFailure reports a publish failure for an outbox record.
type OutboxFailure struct {
	MessageID     envelope.MessageID `json:"message_id"`
	Error         string             `json:"error"`
	FailureReason FailureReason      `json:"failure_reason"`
}

// InboxFailure reports a handler failure for an inbox record.
type InboxFailure struct {
	MessageID     envelope.MessageID `json:"message_id"`
	Error         string             `json:"error"`
	FailureReason FailureReason      `json:"failure_reason"`
}

// NewOutboxMessage is an outbox row a caller wants admitted in Stored state
// (§4.1 step 4).
type NewOutboxMessage struct {
	MessageID      envelope.MessageID `json:"message_id"`
	Destination    string             `json:"destination"`
	EnvelopeType   string             `json:"envelope_type"`
	EventData      json.RawMessage    `json:"event_data"`
	Metadata       json.RawMessage    `json:"metadata,omitempty"`
	Scope          json.RawMessage    `json:"scope,omitempty"`
	StreamID       string             `json:"stream_id,omitempty"`
	IsEvent        bool               `json:"is_event,omitempty"`
}

// NewInboxMessage is an inbox row a caller wants admitted in Stored state.
type NewInboxMessage struct {
	MessageID    envelope.MessageID `json:"message_id"`
	HandlerName  string             `json:"handler_name"`
	EnvelopeType string             `json:"envelope_type"`
	EventData    json.RawMessage    `json:"event_data"`
	Metadata     json.RawMessage    `json:"metadata,omitempty"`
	Scope        json.RawMessage    `json:"scope,omitempty"`
	StreamID     string             `json:"stream_id,omitempty"`
}

// PerspectiveCheckpoint reports progress against a read-model perspective.
// Request carries these in the single atomic call, but process_work_batch
// does not read the perspective fields: they are neither stored nor acted
// on, and they do not affect outbox/inbox claim state.
type PerspectiveCheckpoint struct {
	PerspectiveName string             `json:"perspective_name"`
	MessageID       envelope.MessageID `json:"message_id"`
	Error           string             `json:"error,omitempty"`
}

// Request is the full set of events and identity/lease parameters passed
// to the coordination function in one call (§4.1 "Request fields").
type Request struct {
	InstanceID      string          `json:"instance_id"`
	ServiceName     string          `json:"service_name"`
	Host            string          `json:"host"`
	ProcessID       int             `json:"process_id"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Now             time.Time       `json:"now"`
	LeaseDurationS  int             `json:"lease_duration_s"`
	PartitionCount  int             `json:"partition_count"`
	StaleThresholdS int             `json:"stale_threshold_s"`
	Flags           Flags           `json:"flags"`
	BatchLimit      int             `json:"batch_limit"`

	OutboxCompletions []OutboxCompletion `json:"outbox_completions,omitempty"`
	OutboxFailures    []OutboxFailure    `json:"outbox_failures,omitempty"`
	InboxCompletions  []InboxCompletion  `json:"inbox_completions,omitempty"`
	InboxFailures     []InboxFailure     `json:"inbox_failures,omitempty"`

	NewOutboxMessages []NewOutboxMessage `json:"new_outbox_messages,omitempty"`
	NewInboxMessages  []NewInboxMessage  `json:"new_inbox_messages,omitempty"`

	RenewOutboxLeaseIDs []envelope.MessageID `json:"renew_outbox_lease_ids,omitempty"`
	RenewInboxLeaseIDs  []envelope.MessageID `json:"renew_inbox_lease_ids,omitempty"`

	PerspectiveCheckpointCompletions []PerspectiveCheckpoint `json:"perspective_checkpoint_completions,omitempty"`
	PerspectiveCheckpointFailures    []PerspectiveCheckpoint `json:"perspective_checkpoint_failures,omitempty"`
}

// IsEmpty reports whether the request carries no outcomes, admissions, or
// renewals to report — used by the scoped UoW strategy to decide whether a
// flush needs to call the coordination function at all (§4.3).
func (r *Request) IsEmpty() bool {
	return len(r.OutboxCompletions) == 0 &&
		len(r.OutboxFailures) == 0 &&
		len(r.InboxCompletions) == 0 &&
		len(r.InboxFailures) == 0 &&
		len(r.NewOutboxMessages) == 0 &&
		len(r.NewInboxMessages) == 0 &&
		len(r.RenewOutboxLeaseIDs) == 0 &&
		len(r.RenewInboxLeaseIDs) == 0
}

// WorkSource distinguishes outbox work from inbox work in the response.
type WorkSource string

const (
	SourceOutbox WorkSource = "outbox"
	SourceInbox  WorkSource = "inbox"
)

// OutboxWork is one claimed outbox row, carrying everything the publisher
// worker needs to publish it (§4.1 step 8).
type OutboxWork struct {
	MessageID       envelope.MessageID `json:"message_id"`
	Destination     string             `json:"destination"`
	EnvelopeType    string             `json:"envelope_type"`
	EventData       json.RawMessage    `json:"event_data"`
	Metadata        json.RawMessage    `json:"metadata,omitempty"`
	Scope           json.RawMessage    `json:"scope,omitempty"`
	StreamID        string             `json:"stream_id,omitempty"`
	PartitionNumber *int32             `json:"partition_number,omitempty"`
	Status          Status             `json:"status"`
	Attempts        int                `json:"attempts"`
	IsNewlyStored   bool               `json:"is_newly_stored"`
	IsOrphaned      bool               `json:"is_orphaned"`
}

// InboxWork is one claimed inbox row, carrying everything the ordered
// stream processor needs to hand off to a handler.
type InboxWork struct {
	MessageID       envelope.MessageID `json:"message_id"`
	HandlerName     string             `json:"handler_name"`
	EnvelopeType    string             `json:"envelope_type"`
	EventData       json.RawMessage    `json:"event_data"`
	Metadata        json.RawMessage    `json:"metadata,omitempty"`
	Scope           json.RawMessage    `json:"scope,omitempty"`
	StreamID        string             `json:"stream_id,omitempty"`
	PartitionNumber *int32             `json:"partition_number,omitempty"`
	Status          Status             `json:"status"`
	Attempts        int                `json:"attempts"`
	IsNewlyStored   bool               `json:"is_newly_stored"`
	IsOrphaned      bool               `json:"is_orphaned"`
}

// AdmissionDiagnostic is the shape of a non-fatal, per-message admission
// report. process_work_batch always returns an empty diagnostics list, so
// duplicates that were silently deduplicated are not reported here.
// Transaction-aborting errors surface as an error return from
// Coordinator.Call instead (§4.1 "Failure semantics").
type AdmissionDiagnostic struct {
	MessageID envelope.MessageID `json:"message_id"`
	Reason    string             `json:"reason"`
}

// WorkBatch is the in-memory result of a coordination call (§3 WorkBatch,
// §4.1 step 8 "Return").
type WorkBatch struct {
	OutboxWork  []OutboxWork           `json:"outbox_work"`
	InboxWork   []InboxWork            `json:"inbox_work"`
	Diagnostics []AdmissionDiagnostic  `json:"diagnostics,omitempty"`
}

// IsEmpty reports whether the batch carries no work at all.
func (b *WorkBatch) IsEmpty() bool {
	return b == nil || (len(b.OutboxWork) == 0 && len(b.InboxWork) == 0)
}

// Coordinator is the contract every caller of the coordination function
// programs against. The only implementation in this module is
// pkg/coordination/postgres, which invokes the stored procedure described
// in schema.sql; tests use an in-memory fake implementing the same
// interface.
type Coordinator interface {
	// Call performs one atomic coordination round trip (§4.1): heartbeat,
	// reap, apply outcomes, admit new messages, renew leases, assign
	// partitions, claim work, and return the next batch. Any error means
	// the whole call was rolled back — the caller retains everything it
	// tried to report and will retry it on the next call.
	Call(ctx context.Context, req Request) (*WorkBatch, error)
}
