package image

import (
	"fmt"

	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

// ArchiveKind distinguishes the two upstream rootfs archive shapes the
// pipeline knows how to unpack.
type ArchiveKind int

const (
	ArchiveSquashFS ArchiveKind = iota
	ArchiveTarGZ
)

// PackagingKind selects the final image format (spec.md §4.4 step 6).
type PackagingKind int

const (
	PackageSquashFS PackagingKind = iota
	PackageExt4
)

// sshEnableStyle selects how sshd is enabled inside the chroot (spec.md
// §4.4 step 5).
type sshEnableStyle int

const (
	enableSystemd sshEnableStyle = iota // systemctl enable sshd|ssh
	enableOpenRC                        // rc-update add sshd
	enableSlackware                     // symlink rc.sshd
	enableNixConfig                     // substitute key into configuration.nix
)

// distroSpec is the data-driven description of one distro variant. spec.md
// §9 allows either a closed sum type or an open registry keyed by tag;
// fireup uses the registry shape so the twelve variants share one pipeline
// implementation instead of duplicating it twelve times.
type distroSpec struct {
	distro        Distro
	archiveKind   ArchiveKind
	packaging     PackagingKind
	sshEnable     sshEnableStyle
	packageMgr    string // "apt", "apk", "" for image-only distros
	mirrorURL     func(arch string) string
	overlayInit   bool // Debian/Ubuntu overlay-init enablement (step 7)
	defaultMemory int  // MiB; spec.md §3: 2048 for NixOS, else 512
}

var registry = map[Distro]*distroSpec{
	Debian: {
		distro: Debian, archiveKind: ArchiveSquashFS, packaging: PackageSquashFS,
		sshEnable: enableSystemd, packageMgr: "apt", overlayInit: true,
		mirrorURL:     func(arch string) string { return mirrorBase + "debian-12." + arch + ".squashfs" },
		defaultMemory: 512,
	},
	Ubuntu: {
		distro: Ubuntu, archiveKind: ArchiveSquashFS, packaging: PackageSquashFS,
		sshEnable: enableSystemd, packageMgr: "apt", overlayInit: true,
		mirrorURL:     func(arch string) string { return "" }, // resolved via firecracker-ci listing, see kernel.go
		defaultMemory: 512,
	},
	Alpine: {
		distro: Alpine, archiveKind: ArchiveTarGZ, packaging: PackageSquashFS,
		sshEnable: enableOpenRC, packageMgr: "apk",
		mirrorURL: func(arch string) string {
			return "https://mirrors.aliyun.com/alpine/v3.22/releases/" + arch + "/alpine-minirootfs-3.22.0-" + arch + ".tar.gz"
		},
		defaultMemory: 512,
	},
	NixOS: {
		distro: NixOS, archiveKind: ArchiveSquashFS, packaging: PackageSquashFS,
		sshEnable:     enableNixConfig,
		mirrorURL:     func(arch string) string { return mirrorBase + "nixos-" + arch + ".squashfs" },
		defaultMemory: 2048,
	},
	Fedora:     genericSquashFSVariant(Fedora, "fedora"),
	Gentoo:     genericSquashFSVariant(Gentoo, "gentoo"),
	Slackware:  genericSquashFSVariant(Slackware, "slackware"),
	Opensuse:             genericSquashFSVariant(Opensuse, "opensuse"),
	OpensuseTumbleweed:   genericSquashFSVariant(OpensuseTumbleweed, "opensuse-tumbleweed"),
	Almalinux:  genericSquashFSVariant(Almalinux, "almalinux"),
	Rockylinux: genericSquashFSVariant(Rockylinux, "rockylinux"),
	Archlinux:  genericSquashFSVariant(Archlinux, "archlinux"),
}

const mirrorBase = "https://fireup-images.example.org/mirror/"

func genericSquashFSVariant(d Distro, tag string) *distroSpec {
	enable := enableSystemd
	if d == Slackware {
		enable = enableSlackware
	}
	return &distroSpec{
		distro: d, archiveKind: ArchiveSquashFS, packaging: PackageSquashFS,
		sshEnable: enable,
		mirrorURL: func(arch string) string {
			return mirrorBase + tag + "-" + arch + ".squashfs"
		},
		defaultMemory: 512,
	}
}

// Registry dispatches a distro tag to its Preparer, implementing the
// "open registry" option from spec.md §9.
type Registry struct {
	runner *runner.Runner
	locker lock.Locker
}

func NewRegistry(r *runner.Runner, l lock.Locker) *Registry {
	return &Registry{runner: r, locker: l}
}

// Preparer returns the Preparer for a distro tag, or ErrUnknownDistro.
func (r *Registry) Preparer(d Distro) (Preparer, error) {
	spec, ok := registry[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistro, d)
	}
	return &pipeline{spec: spec, runner: r.runner, locker: r.locker}, nil
}

// DefaultMemory returns the default guest memory budget for a distro, per
// spec.md §3 ("2048 when the image is NixOS").
func DefaultMemory(d Distro) int {
	if spec, ok := registry[d]; ok {
		return spec.defaultMemory
	}
	return 512
}

// SupportedDistros lists every registered distro tag, for CLI flag wiring.
func SupportedDistros() []Distro {
	out := make([]Distro, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	return out
}
