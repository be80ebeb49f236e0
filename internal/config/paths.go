// Package config resolves fireup's per-user state directory and loads the
// project-local declarative VM configuration (fire.toml).
package config

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

const stateDirName = ".fireup"

// StateDir returns $HOME/.fireup, creating it if necessary.
func StateDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, stateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}

// DBPath returns the path to the SQLite inventory file inside the state dir.
func DBPath(stateDir string) string {
	return filepath.Join(stateDir, "firecracker_state.db")
}

// LogsDir returns the per-VM hypervisor log directory, creating it if
// necessary.
func LogsDir(stateDir string) (string, error) {
	dir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SSHKeyPath returns the default keypair path used when no --ssh-keys flag
// is supplied.
func SSHKeyPath(stateDir string) string {
	return filepath.Join(stateDir, "id_rsa")
}
