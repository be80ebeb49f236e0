package network

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// EnsureBridge creates the named bridge if it doesn't exist and configures
// its gateway IP. Idempotent - safe to call on every `up`.
func EnsureBridge(name string) error {
	bridge, ok := GetBridge(name)
	if !ok {
		la := netlink.NewLinkAttrs()
		la.Name = name
		bridge = &netlink.Bridge{LinkAttrs: la}

		if err := netlink.LinkAdd(bridge); err != nil {
			return fmt.Errorf("%w: %v", ErrBridgeCreateFailed, err)
		}
	}

	return configureBridge(bridge)
}

func configureBridge(bridge *netlink.Bridge) error {
	addr, err := netlink.ParseAddr(BridgeIP + "/24")
	if err != nil {
		return fmt.Errorf("parse bridge IP: %w", err)
	}

	addrs, err := netlink.AddrList(bridge, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("list bridge addresses: %w", err)
	}

	hasIP := false
	for _, a := range addrs {
		if a.IP.Equal(addr.IP) {
			hasIP = true
			break
		}
	}

	if !hasIP {
		if err := netlink.AddrReplace(bridge, addr); err != nil {
			return fmt.Errorf("add IP to bridge: %w", err)
		}
	}

	return netlink.LinkSetUp(bridge)
}

// GetBridge looks up an existing bridge device by name.
func GetBridge(name string) (*netlink.Bridge, bool) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, false
	}

	bridge, ok := link.(*netlink.Bridge)
	return bridge, ok
}

// DestroyBridge removes the bridge. Fails if any device is still enslaved.
func DestroyBridge(name string) error {
	bridge, ok := GetBridge(name)
	if !ok {
		return nil
	}
	if err := netlink.LinkDel(bridge); err != nil {
		return fmt.Errorf("delete bridge: %w", err)
	}
	return nil
}

// BridgeGatewayIP returns the bridge's gateway address (the DHCP/DNS router).
func BridgeGatewayIP() net.IP {
	return net.ParseIP(BridgeIP)
}

// EnsureDummyInterface creates dummy0, enslaved to bridge, to satisfy Kea's
// requirement that its listening interface be administratively up even
// before any guest tap exists (spec.md §4.5, grounded in
// firecracker-vm/src/dhcpd.rs::restart_kea_dhcp).
func EnsureDummyInterface(bridgeName string) error {
	if _, err := netlink.LinkByName(DummyInterface); err == nil {
		return nil
	}

	la := netlink.NewLinkAttrs()
	la.Name = DummyInterface
	dummy := &netlink.Dummy{LinkAttrs: la}

	if err := netlink.LinkAdd(dummy); err != nil {
		return fmt.Errorf("create dummy interface: %w", err)
	}

	bridge, ok := GetBridge(bridgeName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBridgeNotFound, bridgeName)
	}

	if err := netlink.LinkSetMaster(dummy, bridge); err != nil {
		return fmt.Errorf("enslave dummy interface to bridge: %w", err)
	}

	return netlink.LinkSetUp(dummy)
}
