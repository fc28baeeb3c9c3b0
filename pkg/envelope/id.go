// Package envelope implements the typed message carrier described in the
// work coordinator's data model: an Envelope wraps a payload with a
// time-ordered identity and an append-only hop history.
package envelope

import (
	"github.com/google/uuid"
)

// MessageID, CorrelationID, and CausationID are time-ordered 128-bit
// identifiers (UUIDv7): monotonic within a process and naturally sortable,
// which is what the stream-ordering gate in the coordination function
// relies on (§4.1 step 7, "selection ordering is (partition_number,
// stream_id, message_id)").
type MessageID string
type CorrelationID string
type CausationID string

// NewMessageID generates a fresh time-ordered message ID.
func NewMessageID() MessageID {
	return MessageID(mustNewV7())
}

// NewCorrelationID generates a fresh time-ordered correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(mustNewV7())
}

// NewCausationID generates a fresh time-ordered causation ID.
func NewCausationID() CausationID {
	return CausationID(mustNewV7())
}

func mustNewV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only errors if the process-wide random source fails,
		// which indicates the runtime is unusable; fall back rather than
		// propagate an error through every ID constructor call site.
		return uuid.New().String()
	}
	return id.String()
}

// Less reports whether a sorts before b under the total order the
// coordination function uses inside a stream (§3 invariant 6, §4.1
// "ordering and tie-breaks"). UUIDv7 IDs sort correctly as plain strings.
func (a MessageID) Less(b MessageID) bool {
	return string(a) < string(b)
}

func (a MessageID) String() string { return string(a) }
func (a CorrelationID) String() string { return string(a) }
func (a CausationID) String() string { return string(a) }
