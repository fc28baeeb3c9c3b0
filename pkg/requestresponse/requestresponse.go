// Package requestresponse provides a correlation-ID-keyed request/response
// store over the request_response table (spec §6). It lets a caller that
// sent a message through the outbox correlate an eventual reply delivered
// through the inbox, without the core coordination function needing to
// know anything about request/response semantics.
package requestresponse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaymesh/workcoordinator/pkg/errors"
)

// Status values a request_response row can carry.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Request is a pending or completed request/response pair.
type Request struct {
	RequestID     string
	CorrelationID string
	RequestType   string
	RequestData   json.RawMessage
	ResponseType  string
	ResponseData  json.RawMessage
	Status        string
	CreatedAt     time.Time
	CompletedAt   *time.Time
	ExpiresAt     *time.Time
}

// Store is a pgxpool-backed request/response store.
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

// Create inserts a new pending request. correlationID must be unique
// (§6 request_response "correlation_id unique") so the eventual reply can
// be matched back to exactly one caller.
func (s *Store) Create(ctx context.Context, req Request) error {
	query := "INSERT INTO " + s.schema + ".request_response " +
		"(request_id, correlation_id, request_type, request_data, status, created_at, expires_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7)"

	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		req.RequestID, req.CorrelationID, req.RequestType, req.RequestData,
		req.Status, req.CreatedAt, req.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "failed to create request/response row")
	}
	return nil
}

// Complete records a response for correlationID and marks it completed.
func (s *Store) Complete(ctx context.Context, correlationID string, responseType string, responseData json.RawMessage) error {
	query := "UPDATE " + s.schema + ".request_response " +
		"SET response_type = $2, response_data = $3, status = $4, completed_at = $5 " +
		"WHERE correlation_id = $1"

	_, err := s.pool.Exec(ctx, query, correlationID, responseType, responseData, StatusCompleted, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to complete request/response row")
	}
	return nil
}

// Get fetches a request/response row by correlation ID.
func (s *Store) Get(ctx context.Context, correlationID string) (*Request, error) {
	query := "SELECT request_id, correlation_id, request_type, request_data, response_type, response_data, status, created_at, completed_at, expires_at " +
		"FROM " + s.schema + ".request_response WHERE correlation_id = $1"

	var r Request
	err := s.pool.QueryRow(ctx, query, correlationID).Scan(
		&r.RequestID, &r.CorrelationID, &r.RequestType, &r.RequestData,
		&r.ResponseType, &r.ResponseData, &r.Status, &r.CreatedAt, &r.CompletedAt, &r.ExpiresAt)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound, "request/response row not found", err)
	}
	return &r, nil
}

// ExpirePending marks every still-pending row past its expires_at as
// expired, so callers waiting on a reply that will never arrive can stop
// polling.
func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := "UPDATE " + s.schema + ".request_response " +
		"SET status = $1 WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3"

	tag, err := s.pool.Exec(ctx, query, StatusExpired, StatusPending, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire pending requests")
	}
	return tag.RowsAffected(), nil
}
