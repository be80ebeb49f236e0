package network

import (
	"fmt"
	"net"
	"os"

	"github.com/coreos/go-iptables/iptables"
	"github.com/vishvananda/netlink"
)

// EnableNAT implements spec.md §4.5's NAT bullet: enable IP forwarding,
// find the host's default-route interface, install a MASQUERADE rule for
// it if absent, and set the FORWARD policy to ACCEPT. All operations are
// idempotent so repeated `up` calls converge to the same rule set.
func EnableNAT() error {
	if err := enableIPForwarding(); err != nil {
		return fmt.Errorf("enable ip forwarding: %w", err)
	}

	iface, err := defaultRouteInterface()
	if err != nil {
		return fmt.Errorf("find default route interface: %w", err)
	}

	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("init iptables: %w", err)
	}

	exists, err := ipt.Exists("nat", "POSTROUTING", "-o", iface, "-j", "MASQUERADE")
	if err != nil {
		return fmt.Errorf("%w: check MASQUERADE rule: %v", ErrNATSetupFailed, err)
	}
	if !exists {
		if err := ipt.Append("nat", "POSTROUTING", "-o", iface, "-j", "MASQUERADE"); err != nil {
			return fmt.Errorf("%w: add MASQUERADE rule: %v", ErrNATSetupFailed, err)
		}
	}

	if err := ipt.ChangePolicy("filter", "FORWARD", "ACCEPT"); err != nil {
		return fmt.Errorf("%w: set FORWARD policy: %v", ErrNATSetupFailed, err)
	}

	return nil
}

// defaultRouteInterface mirrors `ip -j route list default`'s first
// entry's "dev" field (spec.md §4.5), using netlink instead of shelling to
// ip and parsing JSON.
func defaultRouteInterface() (string, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", err
	}

	for _, r := range routes {
		if r.Dst == nil || r.Dst.IP.Equal(net.IPv4zero) {
			link, err := netlink.LinkByIndex(r.LinkIndex)
			if err != nil {
				continue
			}
			return link.Attrs().Name, nil
		}
	}

	return "", fmt.Errorf("no default route found")
}

// DisableNAT removes the rules EnableNAT installs. Used by full teardown
// paths; not exercised by `stop`, which only tears down per-VM resources.
func DisableNAT() error {
	iface, err := defaultRouteInterface()
	if err != nil {
		return err
	}

	ipt, err := iptables.New()
	if err != nil {
		return err
	}

	return ipt.DeleteIfExists("nat", "POSTROUTING", "-o", iface, "-j", "MASQUERADE")
}

// AddPortMappings installs DNAT rules forwarding host ports to a guest.
func AddPortMappings(vmIP string, mappings []PortMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	ipt, err := iptables.New()
	if err != nil {
		return err
	}

	for _, m := range mappings {
		if m.Protocol != "tcp" {
			continue
		}
		if err := ipt.AppendUnique("nat", "PREROUTING", "-p", "tcp",
			"--dport", fmt.Sprintf("%d", m.HostPort),
			"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", vmIP, m.GuestPort)); err != nil {
			return fmt.Errorf("add port mapping %d->%s:%d: %w", m.HostPort, vmIP, m.GuestPort, err)
		}
	}

	return nil
}

// RemovePortMappings removes the rules AddPortMappings installs.
func RemovePortMappings(vmIP string, mappings []PortMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	ipt, err := iptables.New()
	if err != nil {
		return err
	}

	for _, m := range mappings {
		if m.Protocol != "tcp" {
			continue
		}
		_ = ipt.DeleteIfExists("nat", "PREROUTING", "-p", "tcp",
			"--dport", fmt.Sprintf("%d", m.HostPort),
			"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", vmIP, m.GuestPort))
	}

	return nil
}

func enableIPForwarding() error {
	const path = "/proc/sys/net/ipv4/ip_forward"

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ip_forward: %w", err)
	}

	if len(data) > 0 && data[0] == '1' {
		return nil
	}

	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrForwardingDisabled, err)
	}

	return nil
}
