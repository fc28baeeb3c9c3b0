package transport

import "github.com/relaymesh/workcoordinator/pkg/errors"

// Error codes for transport operations.
const (
	CodeConnectionFailed = "TRANSPORT_CONN_FAILED"
	CodeNotReady         = "TRANSPORT_NOT_READY"
	CodePublishFailed    = "TRANSPORT_PUBLISH_FAILED"
	CodeSubscribeFailed  = "TRANSPORT_SUBSCRIBE_FAILED"
	CodeInvalidConfig    = "TRANSPORT_INVALID_CONFIG"
)

// ErrConnectionFailed creates an error for backend connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to transport backend", err)
}

// ErrNotReady creates an error for an unready transport. Callers on the
// publish path should prefer checking IsReady and never surface this as a
// fatal error (§7 "Transport unready" is recovered via lease renewal).
func ErrNotReady(err error) *errors.AppError {
	return errors.New(CodeNotReady, "transport backend is not ready", err)
}

// ErrPublishFailed creates an error for a publish call that failed outside
// the PublishResult contract (e.g. the adapter itself panicked or the
// destination was malformed).
func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish to transport", err)
}

// ErrSubscribeFailed creates an error for a subscribe call that could not
// be established.
func ErrSubscribeFailed(err error) *errors.AppError {
	return errors.New(CodeSubscribeFailed, "failed to subscribe to transport", err)
}

// ErrInvalidConfig creates an error for invalid adapter configuration.
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid transport configuration: "+msg, err)
}
