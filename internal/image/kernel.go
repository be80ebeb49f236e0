package image

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maxdollinger/fireup/internal/runner"
)

const defaultKernelVersion = "6.16.7"

func kernelVersion() string {
	if v := os.Getenv("KERNEL_VERSION"); v != "" {
		return v
	}
	return defaultKernelVersion
}

// resolveKernel implements spec.md §4.4 step 1 and §6's "External artifact
// sources": an explicit override is canonicalised; otherwise the latest
// Firecracker-CI kernel for the detected arch is located and downloaded,
// cached under state_dir/vmlinux-<ver>.
func resolveKernel(ctx context.Context, r *runner.Runner, override, stateDir, arch string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("canonicalise kernel override %s: %w", override, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: %s", ErrKernelNotFound, abs)
		}
		return abs, nil
	}

	ver := kernelVersion()
	dest := filepath.Join(stateDir, fmt.Sprintf("vmlinux-%s", ver))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	key, err := latestCIKey(ctx, "vmlinux", arch)
	if err != nil {
		return "", err
	}
	url := ciBaseURL + key

	if err := download(ctx, url, dest); err != nil {
		return "", &DownloadFailedError{URL: url, Cause: err}
	}

	if err := extractVmlinuxIfBzImage(ctx, r, dest); err != nil {
		return "", err
	}

	return dest, nil
}

const ciBaseURL = "https://s3.amazonaws.com/spec.ccfc.min/"

// latestCIKey lists "firecracker-ci/<ci-version>/<arch>/<prefix>-*" keys and
// returns the version-sorted last one, per spec.md §6.
func latestCIKey(ctx context.Context, prefix, arch string) (string, error) {
	keys, err := listBucketKeys(ctx, fmt.Sprintf("firecracker-ci/"))
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, k := range keys {
		if strings.Contains(k, "/"+arch+"/") && strings.Contains(k, "/"+prefix+"-") {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no firecracker-ci %s key for arch %s", ErrKernelNotFound, prefix, arch)
	}

	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// listBucketKeys performs an S3 ListObjectsV2-style GET with a prefix
// filter. The XML parsing is deliberately minimal: fireup only needs the
// <Key> elements.
func listBucketKeys(ctx context.Context, prefix string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ciBaseURL+"?list-type=2&prefix="+prefix, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list bucket: unexpected status %d", resp.StatusCode)
	}

	return parseS3Keys(resp.Body)
}

func download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := copyBody(f, resp); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, dest)
}

// extractVmlinuxIfBzImage detects a bzImage wrapper via the `file` tool and,
// if found, runs the bundled extraction script to recover the uncompressed
// vmlinux image in place (spec.md §4.4 step 8).
func extractVmlinuxIfBzImage(ctx context.Context, r *runner.Runner, kernelPath string) error {
	res, err := r.Run(ctx, false, runner.Capture, "file", "-b", kernelPath)
	if err != nil {
		return fmt.Errorf("identify kernel file type: %w", err)
	}

	if !strings.Contains(res.Stdout, "bzImage") {
		return nil
	}

	script, err := extractVmlinuxScriptPath(ctx)
	if err != nil {
		return err
	}

	if _, err := r.Run(ctx, false, runner.Capture, "sh", script, kernelPath, kernelPath); err != nil {
		return fmt.Errorf("extract vmlinux from bzImage: %w", err)
	}

	return nil
}
