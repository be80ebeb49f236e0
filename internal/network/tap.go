package network

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// EnsureTAP creates tap if it does not exist (bringing it up and enslaving
// it to bridge), or, if it already exists, flushes its IP addresses while
// leaving it attached to the bridge (spec.md §4.5).
func EnsureTAP(tap, bridgeName string) error {
	if TAPExists(tap) {
		return flushTAPAddresses(tap)
	}

	la := netlink.NewLinkAttrs()
	la.Name = tap
	tuntap := &netlink.Tuntap{LinkAttrs: la, Mode: netlink.TUNTAP_MODE_TAP}

	if err := netlink.LinkAdd(tuntap); err != nil {
		return fmt.Errorf("%w: %v", ErrTAPCreateFailed, err)
	}

	bridge, err := netlink.LinkByName(bridgeName)
	if err != nil {
		_ = netlink.LinkDel(tuntap)
		return fmt.Errorf("%w: %v", ErrBridgeNotFound, err)
	}

	if err := netlink.LinkSetMaster(tuntap, bridge); err != nil {
		_ = netlink.LinkDel(tuntap)
		return fmt.Errorf("attach tap to bridge: %w", err)
	}

	if err := netlink.LinkSetUp(tuntap); err != nil {
		_ = netlink.LinkDel(tuntap)
		return fmt.Errorf("bring tap up: %w", err)
	}

	return nil
}

func flushTAPAddresses(tap string) error {
	link, err := netlink.LinkByName(tap)
	if err != nil {
		return nil
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("list tap addresses: %w", err)
	}

	for _, a := range addrs {
		if err := netlink.AddrDel(link, &a); err != nil {
			return fmt.Errorf("flush tap address: %w", err)
		}
	}

	return nil
}

// DestroyTAP removes a TAP device, no-op if it is already gone.
func DestroyTAP(tap string) error {
	link, err := netlink.LinkByName(tap)
	if err != nil {
		return nil
	}

	if _, ok := link.(*netlink.Tuntap); !ok {
		return fmt.Errorf("device %s exists but is not a TAP device", tap)
	}

	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete tap %s: %w", tap, err)
	}

	return nil
}

// TAPExists reports whether a TAP device with the given name exists.
func TAPExists(tap string) bool {
	link, err := netlink.LinkByName(tap)
	if err != nil {
		return false
	}
	_, ok := link.(*netlink.Tuntap)
	return ok
}
