// Package lifecycle implements the VM Lifecycle Controller (C7): it binds
// config, persistence, image assembly, network fabric, and the Firecracker
// driver into create/start/stop/delete operations over one microVM.
package lifecycle

import "context"

// UpOptions parameterizes a single up() call (spec.md §4.7 step 1). Fields
// left zero are resolved by the controller (tap/mac/api_socket allocation,
// distro defaults, generated name).
type UpOptions struct {
	Name       string
	Distro     string
	Arch       string // "x86_64" or "aarch64"; defaults to runtime.GOARCH mapping
	VCPU       int
	Memory     int
	Vmlinux    string // override; empty means "resolve via C4"
	Rootfs     string // override; empty means "resolve via C4"
	BootArgs   string
	Bridge     string
	Tap        string
	ApiSocket  string
	MacAddress string
	SSHKeys    []string
	ProjectDir string

	// TailscaleAuthKey is carried for a future TailscaleJoiner
	// implementation; fireup never dials out with it (spec.md Non-goals
	// exclude the Tailscale helper).
	TailscaleAuthKey string
}

// TailscaleJoiner is an interface-only collaborator: a future
// implementation could join the guest to a tailnet post-boot. No
// implementation ships here, matching the Non-goal excluding the
// Tailscale helper (SPEC_FULL.md §12).
type TailscaleJoiner interface {
	Join(ctx context.Context, authKey string, hostname string) error
}
