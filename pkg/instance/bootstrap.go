package instance

import (
	"context"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/concurrency/distlock"
)

// SchemaOwnershipTTL bounds how long one instance holds the startup lock
// before another instance is free to take over if it never releases (e.g.
// it crashed mid-bootstrap).
const SchemaOwnershipTTL = 30 * time.Second

// AcquireSchemaOwnership contends for a single lock in locker so that only
// one running instance at a time holds the startup-bootstrap role while the
// rest proceed straight to serving. It only takes the lock: it applies no
// schema and seeds no rows itself. Instances that lose the race are not
// blocked: they simply go on without the role, since the coordination
// function tolerates being called against an already-initialized schema. Callers without a locker
// configured should skip this entirely and treat every instance as an
// owner (the migration step is then expected to run out of band).
func AcquireSchemaOwnership(ctx context.Context, locker distlock.Locker, serviceName string) (owned bool, release func(context.Context), err error) {
	lock := locker.NewLock("schema-owner:"+serviceName, SchemaOwnershipTTL)

	owned, err = lock.Acquire(ctx)
	if err != nil {
		return false, func(context.Context) {}, err
	}
	if !owned {
		return false, func(context.Context) {}, nil
	}

	release = func(ctx context.Context) {
		_ = lock.Release(ctx)
	}
	return true, release, nil
}
