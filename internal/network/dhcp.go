package network

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/maxdollinger/fireup/internal/runner"
)

// EnsureDHCP installs and (re)starts Kea DHCPv4 bound to the bridge subnet,
// with the MQTT lease-notification hook wired in (spec.md §4.5). Grounded
// on original_source/crates/firecracker-vm/src/dhcpd.rs.
func EnsureDHCP(ctx context.Context, r *runner.Runner, bridgeName string) error {
	if err := ensureKeaInstalled(ctx, r); err != nil {
		return fmt.Errorf("install kea: %w", err)
	}

	if err := writeHookScript(); err != nil {
		return fmt.Errorf("write kea mqtt hook: %w", err)
	}

	if err := writeAppArmorProfile(ctx, r); err != nil {
		return fmt.Errorf("write kea apparmor profile: %w", err)
	}

	if err := writeKeaConfig(bridgeName); err != nil {
		return fmt.Errorf("write kea config: %w", err)
	}

	if err := EnsureDummyInterface(bridgeName); err != nil {
		return fmt.Errorf("ensure dummy interface: %w", err)
	}

	return restartKea(ctx, r)
}

func ensureKeaInstalled(ctx context.Context, r *runner.Runner) error {
	if _, err := r.Run(ctx, false, runner.Capture, "which", "kea-dhcp4"); err == nil {
		return nil
	}

	_, err := r.Run(ctx, true, runner.Capture, "apt-get", "install", "-y",
		"kea-dhcp4-server", "kea-admin", "kea-common", "etcd-client", "etcd-server")
	return err
}

func writeHookScript() error {
	data, err := readAsset("kea-mqtt-hook.sh")
	if err != nil {
		return err
	}
	return os.WriteFile(KeaHookScriptPath, data, 0o755)
}

func writeAppArmorProfile(ctx context.Context, r *runner.Runner) error {
	data, err := readAsset("usr.sbin.kea-dhcp4")
	if err != nil {
		return err
	}
	if err := os.WriteFile(KeaAppArmorPath, data, 0o644); err != nil {
		return err
	}
	_, err = r.Run(ctx, true, runner.Capture, "apparmor_parser", "-r", KeaAppArmorPath)
	return err
}

// keaConfig mirrors the subset of Kea's JSON schema the system needs: one
// IPv4 subnet, a memfile lease store, and the run_script hook library.
func keaConfig(bridgeName string) map[string]any {
	return map[string]any{
		"Dhcp4": map[string]any{
			"interfaces-config": map[string]any{
				"interfaces": []string{bridgeName, DummyInterface},
			},
			"lease-database": map[string]any{
				"type": "memfile",
			},
			"hooks-libraries": []map[string]any{
				{
					"library": "libdhcp_run_script.so",
					"parameters": map[string]any{
						"name": KeaHookScriptPath,
						"sync": false,
					},
				},
			},
			"subnet4": []map[string]any{
				{
					"subnet": BridgeCIDR,
					"pools": []map[string]any{
						{"pool": DHCPPoolStart + " - " + DHCPPoolEnd},
					},
					"option-data": []map[string]any{
						{"name": "routers", "data": BridgeIP},
						{"name": "domain-name-servers", "data": BridgeIP},
					},
				},
			},
		},
	}
}

func writeKeaConfig(bridgeName string) error {
	data, err := json.MarshalIndent(keaConfig(bridgeName), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(KeaConfigPath, data, 0o644)
}

func restartKea(ctx context.Context, r *runner.Runner) error {
	for _, args := range [][]string{
		{"enable", "kea-dhcp4-server"},
		{"daemon-reload"},
		{"stop", "kea-dhcp4-server"},
		{"start", "kea-dhcp4-server"},
	} {
		if _, err := r.Run(ctx, true, runner.Capture, "systemctl", args...); err != nil {
			return err
		}
	}
	return nil
}
