package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

// pipeline implements the common seven/eight-step Image Assembly pipeline
// from spec.md §4.4, parameterized by one distroSpec.
type pipeline struct {
	spec   *distroSpec
	runner *runner.Runner
	locker lock.Locker
}

func (p *pipeline) Prepare(ctx context.Context, opts Options) (*Artifact, error) {
	// A build lock keyed on (distro, ssh key fingerprint) prevents two
	// concurrent `up` calls for the same image variant from racing on the
	// same cached rootfs/output files.
	fp := fingerprint(opts.SSHKeys)
	lockKey := digest.FromString(string(p.spec.distro) + ":" + fmt.Sprintf("%x", fp))
	l, err := p.locker.AcquireLock(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	defer l.Release()

	kernelPath, err := resolveKernel(ctx, p.runner, opts.KernelOverride, opts.StateDir, opts.Arch)
	if err != nil {
		return nil, fmt.Errorf("resolve kernel: %w", err)
	}

	rootfsDir := filepath.Join(opts.StateDir, string(p.spec.distro)+"-rootfs")
	if err := p.fetchAndExtract(ctx, opts, rootfsDir); err != nil {
		return nil, err
	}

	imagePath := filepath.Join(opts.StateDir, string(p.spec.distro)+"-rootfs.img")

	keyPath, rebuild, err := p.provisionSSH(ctx, opts, rootfsDir)
	if err != nil {
		return nil, fmt.Errorf("provision ssh: %w", err)
	}
	if rebuild {
		// step 4: a changed key fingerprint forces a rebuild by removing
		// the cached output image; nothing else triggers invalidation.
		_ = os.Remove(imagePath)
	}

	if err := p.enable(ctx, rootfsDir, opts); err != nil {
		return nil, fmt.Errorf("distro enablement: %w", err)
	}

	if p.spec.overlayInit {
		if err := p.installOverlayInit(rootfsDir); err != nil {
			return nil, fmt.Errorf("install overlay-init: %w", err)
		}
	}

	if _, err := os.Stat(imagePath); err != nil {
		if err := p.packageRootfs(ctx, rootfsDir, imagePath, opts); err != nil {
			return nil, fmt.Errorf("package rootfs: %w", err)
		}
	}

	return &Artifact{
		KernelPath:      kernelPath,
		RootfsImagePath: imagePath,
		SSHKeyPath:      keyPath,
	}, nil
}

// fetchAndExtract implements steps 2-3: download the upstream archive
// (skip if cached), extract into rootfsDir (skip if it already exists).
func (p *pipeline) fetchAndExtract(ctx context.Context, opts Options, rootfsDir string) error {
	if _, err := os.Stat(rootfsDir); err == nil {
		return nil
	}

	url := p.spec.mirrorURL(opts.Arch)
	if url == "" {
		key, err := latestCIKey(ctx, string(p.spec.distro), opts.Arch)
		if err != nil {
			return err
		}
		url = ciBaseURL + key
	}

	archivePath := filepath.Join(opts.StateDir, filepath.Base(url))
	if _, err := os.Stat(archivePath); err != nil {
		if err := download(ctx, url, archivePath); err != nil {
			return &DownloadFailedError{URL: url, Cause: err}
		}
	}

	if err := os.MkdirAll(rootfsDir, 0o755); err != nil {
		return err
	}

	switch p.spec.archiveKind {
	case ArchiveTarGZ:
		_, err := p.runner.Run(ctx, true, runner.Capture, "tar", "-xzf", archivePath, "-C", rootfsDir)
		return err
	default: // ArchiveSquashFS
		_, err := p.runner.Run(ctx, true, runner.Capture, "unsquashfs", "-f", "-d", rootfsDir, archivePath)
		return err
	}
}

// provisionSSH implements step 4. Returns the key path used (caller-supplied
// keys write to nothing on disk individually; the default keypair path is
// returned when no keys were supplied) and whether the cached image must be
// invalidated.
func (p *pipeline) provisionSSH(ctx context.Context, opts Options, rootfsDir string) (keyPath string, rebuild bool, err error) {
	keys := opts.SSHKeys
	if len(keys) == 0 {
		pub, path, err := ensureDefaultKeypair(ctx, p.runner, opts.StateDir)
		if err != nil {
			return "", false, err
		}
		keys = []string{pub}
		keyPath = path
	}

	wantFP := fingerprint(keys)
	gotFP, existed := readAuthorizedKeysFingerprint(rootfsDir)

	if existed && wantFP == gotFP {
		return keyPath, false, nil
	}

	if err := writeAuthorizedKeys(rootfsDir, keys); err != nil {
		return "", false, err
	}

	return keyPath, existed, nil
}

// enable implements step 5: distro-specific sshd enablement, run inside a
// chroot of rootfsDir. It installs no packages; distroSpec.packageMgr is
// not consulted here.
func (p *pipeline) enable(ctx context.Context, rootfsDir string, opts Options) error {
	switch p.spec.sshEnable {
	case enableOpenRC:
		_, err := p.chroot(ctx, rootfsDir, "rc-update", "add", "sshd", "default")
		return err
	case enableSlackware:
		_, err := p.chroot(ctx, rootfsDir, "ln", "-sf", "/etc/rc.d/rc.sshd", "/etc/rc.d/rc.sshd")
		return err
	case enableNixConfig:
		return p.substituteNixOSKey(rootfsDir, opts)
	default: // enableSystemd
		if _, err := p.chroot(ctx, rootfsDir, "systemctl", "enable", "sshd"); err != nil {
			if _, err2 := p.chroot(ctx, rootfsDir, "systemctl", "enable", "ssh"); err2 != nil {
				return err2
			}
		}
		return p.writeResolvedConf(rootfsDir)
	}
}

func (p *pipeline) chroot(ctx context.Context, rootfsDir string, cmd string, args ...string) (*runner.Result, error) {
	argv := append([]string{rootfsDir, cmd}, args...)
	return p.runner.Run(ctx, true, runner.Capture, "chroot", argv...)
}

func (p *pipeline) writeResolvedConf(rootfsDir string) error {
	path := filepath.Join(rootfsDir, "etc", "systemd", "resolved.conf")
	const content = "[Resolve]\nDNS=172.16.0.1\nDomains=firecracker\n"
	return os.WriteFile(path, []byte(content), 0o644)
}

// nixosKeyPlaceholder is the well-known marker line substituted with the
// installed SSH public key, per spec.md §4.4 step 5.
const nixosKeyPlaceholder = "# FIREUP_SSH_KEY_PLACEHOLDER"

func (p *pipeline) substituteNixOSKey(rootfsDir string, opts Options) error {
	path := filepath.Join(rootfsDir, "etc", "nixos", "configuration.nix")
	data, err := os.ReadFile(path)
	if err != nil {
		// Image may not ship a configuration.nix under the prebuilt mirror
		// layout; nothing to substitute.
		return nil
	}

	keys := opts.SSHKeys
	if len(keys) == 0 {
		// provisionSSH has already installed the default public key here.
		if data, err := os.ReadFile(filepath.Join(rootfsDir, "root", ".ssh", "authorized_keys")); err == nil {
			keys = strings.Split(strings.TrimSpace(string(data)), "\n")
		}
	}
	var keyLine string
	if len(keys) > 0 {
		keyLine = strings.Join(keys, "\" \"")
	}

	replaced := strings.ReplaceAll(string(data), nixosKeyPlaceholder,
		`users.users.root.openssh.authorizedKeys.keys = [ "`+keyLine+`" ];`)

	return os.WriteFile(path, []byte(replaced), 0o644)
}

func (p *pipeline) installOverlayInit(rootfsDir string) error {
	for _, dir := range []string{"overlay/work", "overlay/root", "rom"} {
		if err := os.MkdirAll(filepath.Join(rootfsDir, dir), 0o755); err != nil {
			return err
		}
	}

	src, err := overlayInitScriptPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	dest := filepath.Join(rootfsDir, "sbin", "overlay-init")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o755)
}

// packageRootfs implements step 6: pack rootfsDir into a SquashFS (primary)
// or ext4 (legacy overlay) image at imagePath.
func (p *pipeline) packageRootfs(ctx context.Context, rootfsDir, imagePath string, opts Options) error {
	switch p.spec.packaging {
	case PackageExt4:
		return p.packageExt4(ctx, rootfsDir, imagePath)
	default:
		_, err := p.runner.Run(ctx, true, runner.Capture, "mksquashfs", rootfsDir, imagePath,
			"-noappend", "-comp", "zstd")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPackagingFailed, err)
		}
		return nil
	}
}

func (p *pipeline) packageExt4(ctx context.Context, rootfsDir, imagePath string) error {
	size, err := duBytes(ctx, p.runner, rootfsDir)
	if err != nil {
		return err
	}
	// 20% headroom for inode/journal overhead, matching the spare-capacity
	// rule of thumb the teacher's ext4 builder used.
	sized := size + size/5

	if _, err := p.runner.Run(ctx, true, runner.Capture, "truncate", "-s", fmt.Sprintf("%d", sized), imagePath); err != nil {
		return err
	}

	_, err = p.runner.Run(ctx, true, runner.Capture, "mkfs.ext4", "-F", "-d", rootfsDir, imagePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPackagingFailed, err)
	}
	return nil
}

func duBytes(ctx context.Context, r *runner.Runner, dir string) (int64, error) {
	res, err := r.Run(ctx, true, runner.Capture, "du", "-sb", dir)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected du output: %q", res.Stdout)
	}
	var n int64
	_, err = fmt.Sscanf(fields[0], "%d", &n)
	return n, err
}
