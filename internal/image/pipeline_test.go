package image

import (
	"context"
	"testing"

	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

func TestFingerprintStableForSameKeySet(t *testing.T) {
	a := fingerprint([]string{"ssh-ed25519 AAA a"})
	b := fingerprint([]string{"ssh-ed25519 AAA a"})
	if a != b {
		t.Fatal("fingerprint differs for an identical key set")
	}
}

func TestFingerprintDiffersAcrossKeySets(t *testing.T) {
	a := fingerprint([]string{"ssh-ed25519 AAA a"})
	b := fingerprint([]string{"ssh-ed25519 BBB b"})
	if a == b {
		t.Fatal("fingerprint collided for distinct key sets")
	}
}

func TestProvisionSSHRebuildsOnlyWhenKeysChange(t *testing.T) {
	ctx := context.Background()
	p := &pipeline{spec: registry[Ubuntu], runner: runner.New(), locker: lock.NewNoOpLocker()}
	rootfsDir := t.TempDir()

	opts := Options{SSHKeys: []string{"ssh-ed25519 AAA a"}}
	if _, rebuild, err := p.provisionSSH(ctx, opts, rootfsDir); err != nil {
		t.Fatalf("first provision: %v", err)
	} else if rebuild {
		t.Fatal("first provision should not report a rebuild (no prior authorized_keys)")
	}

	if _, rebuild, err := p.provisionSSH(ctx, opts, rootfsDir); err != nil {
		t.Fatalf("second provision (same keys): %v", err)
	} else if rebuild {
		t.Fatal("re-provisioning with an identical key set must not trigger a rebuild")
	}

	changed := Options{SSHKeys: []string{"ssh-ed25519 BBB b"}}
	if _, rebuild, err := p.provisionSSH(ctx, changed, rootfsDir); err != nil {
		t.Fatalf("third provision (changed keys): %v", err)
	} else if !rebuild {
		t.Fatal("re-provisioning with a different key set must trigger a rebuild")
	}

	fp, ok := readAuthorizedKeysFingerprint(rootfsDir)
	if !ok {
		t.Fatal("authorized_keys not written")
	}
	if want := fingerprint(changed.SSHKeys); fp != want {
		t.Fatal("authorized_keys on disk does not match the newest key set")
	}
}

func TestSupportedDistrosIncludesAllTwelve(t *testing.T) {
	got := SupportedDistros()
	if len(got) != 12 {
		t.Fatalf("len(SupportedDistros()) = %d, want 12", len(got))
	}
}

func TestDefaultMemoryNixOSIsHigher(t *testing.T) {
	if DefaultMemory(NixOS) != 2048 {
		t.Fatalf("NixOS default memory = %d, want 2048", DefaultMemory(NixOS))
	}
	if DefaultMemory(Ubuntu) != 512 {
		t.Fatalf("Ubuntu default memory = %d, want 512", DefaultMemory(Ubuntu))
	}
}
