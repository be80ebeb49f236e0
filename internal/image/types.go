// Package image implements the per-distribution image assembly pipeline
// (C4): producing a kernel path, a packaged rootfs image, and an optional
// SSH key path for each of the twelve supported distro tags.
package image

import "context"

// Distro is one of the twelve supported tags from spec.md §3.
type Distro string

const (
	Debian              Distro = "debian"
	Alpine              Distro = "alpine"
	Ubuntu              Distro = "ubuntu"
	NixOS               Distro = "nixos"
	Fedora              Distro = "fedora"
	Gentoo              Distro = "gentoo"
	Slackware           Distro = "slackware"
	Opensuse            Distro = "opensuse"
	OpensuseTumbleweed  Distro = "opensuse-tumbleweed"
	Almalinux           Distro = "almalinux"
	Rockylinux          Distro = "rockylinux"
	Archlinux           Distro = "archlinux"
)

// Options parameterizes a single prepare() call.
type Options struct {
	Distro         Distro
	Arch           string // "x86_64" or "aarch64"
	StateDir       string
	KernelOverride string   // absolute path; empty means "resolve/download"
	SSHKeys        []string // caller-supplied public keys, newline-joined on disk
}

// Artifact is the transient result of one prepare() call (spec.md §3).
type Artifact struct {
	KernelPath      string
	RootfsImagePath string
	SSHKeyPath      string
}

// Preparer is the capability every distro variant implements (spec.md §4.4,
// §9 "closed sum type ... or open registry").
type Preparer interface {
	Prepare(ctx context.Context, opts Options) (*Artifact, error)
}
