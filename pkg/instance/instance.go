// Package instance provides the service instance identity and readiness
// providers (spec §4.2, component C8): the instance_id/service_name/host/
// process_id tuple every coordination call carries, and the database
// readiness probe the publisher worker consults before each tick.
package instance

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Identity is the stable identity of one running process participating in
// coordination (§3 ServiceInstance).
type Identity struct {
	InstanceID  string
	ServiceName string
	Host        string
	ProcessID   int
}

// NewIdentity builds an Identity for the current process. InstanceID is a
// fresh UUID generated once at process start — it does not survive
// restarts, which is intentional: a restarted process is a new instance
// that must re-acquire its own partitions rather than inherit a prior
// instance's leases.
func NewIdentity(serviceName string) Identity {
	host, _ := os.Hostname()
	return Identity{
		InstanceID:  uuid.NewString(),
		ServiceName: serviceName,
		Host:        host,
		ProcessID:   os.Getpid(),
	}
}

// String renders the identity for logging.
func (id Identity) String() string {
	return fmt.Sprintf("%s[%s]@%s/%d", id.ServiceName, id.InstanceID, id.Host, id.ProcessID)
}

// Pinger is satisfied by any connection pool with a liveness check
// (pgxpool.Pool.Ping has this exact signature).
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseReadinessCheck probes a Pinger and reports whether the database
// is reachable, implementing transport.ReadinessCheck (§4.2 "consults
// DatabaseReadinessCheck").
type DatabaseReadinessCheck struct {
	pinger Pinger
}

// NewDatabaseReadinessCheck wraps pinger.
func NewDatabaseReadinessCheck(pinger Pinger) *DatabaseReadinessCheck {
	return &DatabaseReadinessCheck{pinger: pinger}
}

// IsReady pings the database and reports success.
func (c *DatabaseReadinessCheck) IsReady(ctx context.Context) bool {
	return c.pinger.Ping(ctx) == nil
}
