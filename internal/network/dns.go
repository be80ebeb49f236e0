package network

import (
	"context"
	"fmt"
	"os"

	"github.com/maxdollinger/fireup/internal/runner"
)

const coreDNSUnit = `[Unit]
Description=CoreDNS for fireup guest name resolution
After=network.target etcd.service

[Service]
ExecStart=/usr/bin/coredns -conf ` + CoreDNSConfigPath + `
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// EnsureDNS writes a three-zone Corefile (firecracker. via etcd/skydns,
// ts.net via Tailscale DNS, and a catch-all public forward) and (re)starts
// CoreDNS, per spec.md §4.5.
func EnsureDNS(ctx context.Context, r *runner.Runner, etcdEndpoint string) error {
	corefile := buildCorefile(etcdEndpoint)

	if err := os.WriteFile(CoreDNSConfigPath, []byte(corefile), 0o644); err != nil {
		return fmt.Errorf("write corefile: %w", err)
	}

	if err := os.WriteFile("/etc/systemd/system/coredns.service", []byte(coreDNSUnit), 0o644); err != nil {
		return fmt.Errorf("write coredns unit: %w", err)
	}

	for _, args := range [][]string{
		{"enable", "coredns"},
		{"daemon-reload"},
		{"restart", "coredns"},
	} {
		if _, err := r.Run(ctx, true, runner.Capture, "systemctl", args...); err != nil {
			return fmt.Errorf("systemctl %v: %w", args, err)
		}
	}

	return nil
}

func buildCorefile(etcdEndpoint string) string {
	return fmt.Sprintf(`firecracker.:53 {
    etcd {
        path %s
        endpoint %s
    }
    cache 30
}

ts.net:53 {
    forward . 100.100.100.100
}

.:53 {
    forward . 8.8.8.8 8.8.4.4 1.1.1.1 1.0.0.1 {
        policy round_robin
        except ts.net
    }
    health
}
`, SkydnsEtcdPrefix, etcdEndpoint)
}
