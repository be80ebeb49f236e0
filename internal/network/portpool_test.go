package network

import "testing"

func TestHostPortPoolAllocateRelease(t *testing.T) {
	pool, err := NewHostPortPool(30000, 30001)
	if err != nil {
		t.Fatalf("NewHostPortPool: %v", err)
	}

	ports, err := pool.Allocate("vm-a", 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(ports))
	}

	if _, err := pool.Allocate("vm-b", 1); err != ErrHostPortPoolExhausted {
		t.Fatalf("expected pool exhausted, got %v", err)
	}

	if err := pool.Release("vm-a", ports); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if pool.IsAllocated(ports[0]) {
		t.Fatalf("port %d should be free after release", ports[0])
	}

	if _, err := pool.Allocate("vm-b", 2); err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
}

func TestHostPortPoolReleaseWrongOwner(t *testing.T) {
	pool, err := NewHostPortPool(30000, 30000)
	if err != nil {
		t.Fatalf("NewHostPortPool: %v", err)
	}

	ports, err := pool.Allocate("vm-a", 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := pool.Release("vm-b", ports); err == nil {
		t.Fatal("expected error releasing a port owned by a different vm")
	}
}

func TestNewHostPortPoolInvalidRange(t *testing.T) {
	if _, err := NewHostPortPool(100, 50); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
