package network

import "errors"

var (
	ErrBridgeNotFound     = errors.New("bridge device not found")
	ErrBridgeCreateFailed = errors.New("failed to create bridge device")

	ErrTAPCreateFailed = errors.New("failed to create TAP device")
	ErrTAPNotFound     = errors.New("TAP device not found")
	ErrTapInUse        = errors.New("tap device name already in use")

	ErrMacInUse       = errors.New("mac address already in use")
	ErrApiSocketInUse = errors.New("api socket already in use")

	ErrNATSetupFailed     = errors.New("failed to setup NAT rules")
	ErrForwardingDisabled = errors.New("IP forwarding is disabled")

	ErrGuestDhcpTimeout = errors.New("timed out waiting for guest DHCP lease")

	ErrNeedRoot = errors.New("operation requires root privileges")

	ErrHostPortPoolExhausted = errors.New("host port pool exhausted")
)
