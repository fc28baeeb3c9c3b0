package coordination

import "github.com/relaymesh/workcoordinator/pkg/errors"

// Error codes for the coordination call, following spec §7's taxonomy.
// Admission conflicts and transport-unready conditions are deliberately
// absent here: per §7 they are recovered locally and never surfaced as
// errors.
const (
	CodeDatabaseNotReady    = "COORD_DB_NOT_READY"
	CodeConcurrentConflict  = "COORD_CONCURRENT_CONFLICT"
	CodeFatalCoordination   = "COORD_FATAL"
	CodeInvalidRequest      = "COORD_INVALID_REQUEST"
)

// ErrDatabaseNotReady creates an error for a coordination call skipped
// because the readiness probe reported the database as unavailable.
func ErrDatabaseNotReady(err error) *errors.AppError {
	return errors.New(CodeDatabaseNotReady, "database is not ready for coordination calls", err)
}

// ErrConcurrentConflict creates an error for a unique-constraint race (e.g.
// in the event store) that exhausted its bounded retry budget (§7).
func ErrConcurrentConflict(err error) *errors.AppError {
	return errors.New(CodeConcurrentConflict, "concurrent write conflict exceeded retry budget", err)
}

// ErrFatalCoordination creates an error for an exception raised inside the
// coordination function itself. The whole transaction rolled back; the
// caller retains its queued work and retries on the next tick (§4.1
// "Failure semantics").
func ErrFatalCoordination(err error) *errors.AppError {
	return errors.New(CodeFatalCoordination, "coordination function call failed", err)
}

// ErrInvalidRequest creates an error for a malformed request the client
// refuses to send rather than round-trip to the database.
func ErrInvalidRequest(msg string) *errors.AppError {
	return errors.New(CodeInvalidRequest, msg, nil)
}
