package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrConfigNotFound is returned by Load when fire.toml does not exist in dir.
var ErrConfigNotFound = errors.New("fire.toml not found")

const projectFileName = "fire.toml"

// VMSettings mirrors the [vm] table of fire.toml.
type VMSettings struct {
	VCPU      int    `toml:"vcpu"`
	Memory    int    `toml:"memory"`
	Vmlinux   string `toml:"vmlinux"`
	Rootfs    string `toml:"rootfs"`
	BootArgs  string `toml:"boot_args"`
	Bridge    string `toml:"bridge"`
	Tap       string `toml:"tap"`
	ApiSocket string `toml:"api_socket"`
	Mac       string `toml:"mac"`
}

// ProjectConfig is the parsed shape of a declarative fire.toml file.
type ProjectConfig struct {
	Distro string     `toml:"distro"`
	VM     VMSettings `toml:"vm"`

	// path is the absolute directory the config was loaded from; it is not
	// part of the TOML document.
	path string `toml:"-"`
}

// Dir returns the absolute directory the project config lives in.
func (c *ProjectConfig) Dir() string {
	return c.path
}

// Path returns the fire.toml file path for dir, without checking existence.
func Path(dir string) string {
	return filepath.Join(dir, projectFileName)
}

// Load parses fire.toml from dir. Returns ErrConfigNotFound if the file does
// not exist; any other parse failure is returned with the offending field
// context baked into the message by the toml decoder.
func Load(dir string) (*ProjectConfig, error) {
	path := Path(dir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = dir

	return &cfg, nil
}

// Init writes a fresh fire.toml into dir using defaults, refusing to
// overwrite an existing file unless force is true.
func Init(dir string, defaultDistro string, vcpu int, force bool) error {
	path := Path(dir)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	cfg := ProjectConfig{
		Distro: defaultDistro,
		VM: VMSettings{
			VCPU:   vcpu,
			Memory: 512,
			Bridge: "fcbr0",
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
