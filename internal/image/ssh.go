package image

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"

	"github.com/maxdollinger/fireup/internal/runner"
)

// fingerprint hashes the newline-joined, newline-terminated key set exactly
// as spec.md §4.4 step 4 describes, so two callers passing the same set of
// keys (in the same order) always compare equal.
func fingerprint(keys []string) [32]byte {
	joined := strings.Join(keys, "\n")
	if len(keys) > 0 {
		joined += "\n"
	}
	return sha256.Sum256([]byte(joined))
}

func readAuthorizedKeysFingerprint(rootfsDir string) ([32]byte, bool) {
	path := filepath.Join(rootfsDir, "root", ".ssh", "authorized_keys")
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, false
	}
	return sha256.Sum256(data), true
}

func writeAuthorizedKeys(rootfsDir string, keys []string) error {
	dir := filepath.Join(rootfsDir, "root", ".ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	content := strings.Join(keys, "\n")
	if len(keys) > 0 {
		content += "\n"
	}
	return os.WriteFile(filepath.Join(dir, "authorized_keys"), []byte(content), 0o600)
}

// ensureDefaultKeypair generates state_dir/id_rsa[.pub] with ssh-keygen if
// absent, returning the public key contents and the private key path.
func ensureDefaultKeypair(ctx context.Context, r *runner.Runner, stateDir string) (pubKey string, keyPath string, err error) {
	keyPath = filepath.Join(stateDir, "id_rsa")
	pubPath := keyPath + ".pub"

	if _, statErr := os.Stat(keyPath); statErr != nil {
		if _, err = r.Run(ctx, false, runner.Capture, "ssh-keygen",
			"-t", "ed25519", "-f", keyPath, "-N", "", "-q"); err != nil {
			return "", "", err
		}
	}

	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", "", err
	}

	return strings.TrimSpace(string(data)), keyPath, nil
}
