// Package eventstore provides an append-only event store over the
// event_store table (spec §6: unique (stream_id, version)). It is the one
// component in this module where a unique-constraint race is expected
// under normal operation — two writers racing for the same stream's next
// version — so Append retries with the bounded linear backoff ladder
// spec §7 prescribes for "Concurrent-write conflict" (10 attempts, waiting
// 10ms, 20ms, ..., 90ms before the second through tenth) before surfacing
// a fatal error.
package eventstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/errors"
)

// maxAttempts and the linear backoff step come straight from §7's error
// taxonomy entry for concurrent-write conflicts.
const (
	maxAttempts     = 10
	backoffStep     = 10 * time.Millisecond
	uniqueViolation = "23505"
)

// Event is one row appended to a stream.
type Event struct {
	EventID        string          `json:"event_id"`
	StreamID       string          `json:"stream_id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EventType      string          `json:"event_type"`
	EventData      json.RawMessage `json:"event_data"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	SequenceNumber int64           `json:"sequence_number"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store is a pgxpool-backed append-only event store.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// New wraps pool, scoping queries to schema.
func New(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "coordination"
	}
	return &Store{pool: pool, schema: schema}
}

// Append inserts event at the next version for its stream. version must
// be the caller's expected next version (optimistic concurrency): if
// another writer already took that version, the unique constraint on
// (stream_id, version) fires and Append retries the whole insert at the
// same version after a linear backoff, up to maxAttempts, matching the
// ordering invariant that a stream's versions are a gapless total order.
func (s *Store) Append(ctx context.Context, ev Event) error {
	query := "INSERT INTO " + s.schema + ".event_store " +
		"(event_id, stream_id, aggregate_id, aggregate_type, event_type, event_data, metadata, sequence_number, version, created_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * backoffStep):
			}
		}

		_, err := s.pool.Exec(ctx, query,
			ev.EventID, ev.StreamID, ev.AggregateID, ev.AggregateType, ev.EventType,
			ev.EventData, ev.Metadata, ev.SequenceNumber, ev.Version, ev.CreatedAt)
		if err == nil {
			return nil
		}

		if !isUniqueViolation(err) {
			return errors.Wrap(err, "failed to append event")
		}
		lastErr = err
	}

	return coordination.ErrConcurrentConflict(lastErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Stream returns every event for streamID in version order.
func (s *Store) Stream(ctx context.Context, streamID string) ([]Event, error) {
	query := "SELECT event_id, stream_id, aggregate_id, aggregate_type, event_type, event_data, metadata, sequence_number, version, created_at " +
		"FROM " + s.schema + ".event_store WHERE stream_id = $1 ORDER BY version ASC"

	rows, err := s.pool.Query(ctx, query, streamID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query event stream")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.EventID, &ev.StreamID, &ev.AggregateID, &ev.AggregateType,
			&ev.EventType, &ev.EventData, &ev.Metadata, &ev.SequenceNumber, &ev.Version, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event row")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
