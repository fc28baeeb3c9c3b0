// Package postgres is the only shipped implementation of
// coordination.Coordinator. It invokes coordination.process_work_batch as a
// single scalar jsonb-in/jsonb-out call over a pgxpool.Pool, matching the
// "coordination function stored as a single server-side procedure" contract
// in spec §6.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/errors"
	"github.com/relaymesh/workcoordinator/pkg/resilience"
)

// Config configures the connection used for coordination calls.
type Config struct {
	DSN string
	// Schema qualifies the process_work_batch invocation so this caller
	// can coexist with other schemas in the same database (§6).
	Schema string
}

func (c Config) schemaOrDefault() string {
	if c.Schema == "" {
		return "coordination"
	}
	return c.Schema
}

// Coordinator calls the Postgres coordination function over a pgxpool.
type Coordinator struct {
	pool   *pgxpool.Pool
	schema string
}

// New opens a pgxpool against cfg.DSN and returns a ready Coordinator. The
// initial ping is retried a handful of times with backoff since a fresh
// deployment's database and this service frequently start in parallel.
func New(ctx context.Context, cfg Config) (*Coordinator, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres pool")
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
	if err := resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
		return pool.Ping(ctx)
	}); err != nil {
		pool.Close()
		return nil, coordination.ErrDatabaseNotReady(err)
	}
	return &Coordinator{pool: pool, schema: cfg.schemaOrDefault()}, nil
}

// NewWithPool wraps an already-constructed pool, letting callers share one
// pool across the coordinator and other pgxpool-backed components (e.g.
// pkg/eventstore, pkg/requestresponse).
func NewWithPool(pool *pgxpool.Pool, schema string) *Coordinator {
	if schema == "" {
		schema = "coordination"
	}
	return &Coordinator{pool: pool, schema: schema}
}

// Close releases the underlying pool.
func (c *Coordinator) Close() {
	c.pool.Close()
}

// Ping reports whether the database is currently reachable. The publisher
// worker's DatabaseReadinessCheck (§4.2) calls this before every tick.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Call marshals req, invokes the coordination function in one round trip,
// and unmarshals the returned work batch (§4.1). Any error — including a
// unique-constraint violation outside the admission paths the function
// itself swallows, or a context cancellation — means the whole server-side
// transaction rolled back; req's queued work is still the caller's
// responsibility to retry.
func (c *Coordinator) Call(ctx context.Context, req coordination.Request) (*coordination.WorkBatch, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, coordination.ErrInvalidRequest(fmt.Sprintf("failed to marshal request: %v", err))
	}

	query := fmt.Sprintf("SELECT %s.process_work_batch($1::jsonb)", c.schema)

	var raw []byte
	if err := c.pool.QueryRow(ctx, query, payload).Scan(&raw); err != nil {
		return nil, coordination.ErrFatalCoordination(err)
	}

	var batch coordination.WorkBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, coordination.ErrFatalCoordination(fmt.Errorf("failed to decode work batch: %w", err))
	}
	return &batch, nil
}
