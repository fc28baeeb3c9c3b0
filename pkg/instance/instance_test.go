package instance

import (
	"context"
	"errors"
	"testing"

	distlockmem "github.com/relaymesh/workcoordinator/pkg/concurrency/distlock/adapters/memory"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestDatabaseReadinessCheckReady(t *testing.T) {
	check := NewDatabaseReadinessCheck(fakePinger{})
	if !check.IsReady(context.Background()) {
		t.Fatal("expected ready when ping succeeds")
	}
}

func TestDatabaseReadinessCheckNotReady(t *testing.T) {
	check := NewDatabaseReadinessCheck(fakePinger{err: errors.New("connection refused")})
	if check.IsReady(context.Background()) {
		t.Fatal("expected not ready when ping fails")
	}
}

func TestNewIdentityPopulatesFields(t *testing.T) {
	id := NewIdentity("work-coordinator")
	if id.ServiceName != "work-coordinator" {
		t.Fatalf("ServiceName = %q, want work-coordinator", id.ServiceName)
	}
	if id.InstanceID == "" {
		t.Fatal("InstanceID should not be empty")
	}
	if id.ProcessID == 0 {
		t.Fatal("ProcessID should be populated")
	}
}

func TestAcquireSchemaOwnershipOnlyOneWinner(t *testing.T) {
	locker := distlockmem.New()
	ctx := context.Background()

	owned1, release1, err := AcquireSchemaOwnership(ctx, locker, "work-coordinator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !owned1 {
		t.Fatal("expected the first contender to win")
	}

	owned2, _, err := AcquireSchemaOwnership(ctx, locker, "work-coordinator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owned2 {
		t.Fatal("expected the second contender to lose while the first holds the lock")
	}

	release1(ctx)

	owned3, _, err := AcquireSchemaOwnership(ctx, locker, "work-coordinator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !owned3 {
		t.Fatal("expected ownership to be available again after release")
	}
}
