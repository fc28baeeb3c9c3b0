package envelope

import "time"

// ExecutionStrategy records how a hop processed the envelope: inline within
// the caller's request, or handed off to a background worker.
type ExecutionStrategy string

const (
	ExecutionInline      ExecutionStrategy = "inline"
	ExecutionBackground   ExecutionStrategy = "background"
	ExecutionScheduled    ExecutionStrategy = "scheduled"
)

// HopType distinguishes the hop that produced the current copy of the
// envelope (Current) from the hop that originally caused it to exist
// (Causation) — see §3 Hop.
type HopType string

const (
	HopCurrent   HopType = "current"
	HopCausation HopType = "causation"
)

// CallerInfo identifies the logical caller that produced a hop, independent
// of the physical ServiceInstance that executed it (e.g. an end user or an
// upstream service name for audit purposes).
type CallerInfo struct {
	CallerID   string `json:"caller_id,omitempty"`
	CallerType string `json:"caller_type,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// SecurityContext carries the identity and authorization claims active when
// a hop was recorded. It is optional: internal system-generated hops may
// omit it entirely.
type SecurityContext struct {
	PrincipalID string   `json:"principal_id,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// PolicyDecision is one entry in a hop's trail: a named policy that was
// evaluated and the outcome it produced (e.g. a retry policy, a routing
// policy, a rate limit).
type PolicyDecision struct {
	Policy    string `json:"policy"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
}

// Hop records one point an envelope passed through: who handled it, when,
// under what execution strategy, and what that hop decided (§3 Hop).
type Hop struct {
	ServiceInstance string            `json:"service_instance"`
	Timestamp       time.Time         `json:"timestamp"`
	Type            HopType           `json:"type"`
	Topic           string            `json:"topic,omitempty"`
	StreamKey       string            `json:"stream_key,omitempty"`
	PartitionIndex  *int32            `json:"partition_index,omitempty"`
	SequenceNumber  *int64            `json:"sequence_number,omitempty"`
	ExecutionStrategy ExecutionStrategy `json:"execution_strategy,omitempty"`
	CallerInfo      CallerInfo        `json:"caller_info,omitempty"`
	SecurityContext *SecurityContext  `json:"security_context,omitempty"`
	Duration        time.Duration     `json:"duration,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Trail           []PolicyDecision  `json:"trail,omitempty"`
}

// Envelope carries a payload across a network hop with causation,
// correlation, and hop history (§3). It is immutable except by appending
// hops via WithHop, so downstream holders of an earlier copy never observe
// a hop vanish out from under them.
type Envelope[T any] struct {
	MessageID     MessageID     `json:"message_id"`
	CorrelationID CorrelationID `json:"correlation_id,omitempty"`
	CausationID   CausationID   `json:"causation_id,omitempty"`
	Type          string        `json:"type"`
	Payload       T             `json:"payload"`
	Hops          []Hop         `json:"hops"`
}

// New creates an envelope with a fresh message ID and no hops.
func New[T any](envelopeType string, payload T) Envelope[T] {
	return Envelope[T]{
		MessageID: NewMessageID(),
		Type:      envelopeType,
		Payload:   payload,
	}
}

// WithHop returns a copy of the envelope with hop appended. The receiver is
// left untouched, matching the "immutable except by appending hops"
// contract: callers that appended don't retroactively mutate a copy that
// has already been handed to a transport.
func (e Envelope[T]) WithHop(hop Hop) Envelope[T] {
	hops := make([]Hop, len(e.Hops), len(e.Hops)+1)
	copy(hops, e.Hops)
	hops = append(hops, hop)
	e.Hops = hops
	return e
}

// LastHop returns the most recently appended hop, and false if the
// envelope has no hops yet.
func (e Envelope[T]) LastHop() (Hop, bool) {
	if len(e.Hops) == 0 {
		return Hop{}, false
	}
	return e.Hops[len(e.Hops)-1], true
}
