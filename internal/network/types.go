// Package network builds and tears down the host-side fabric a microVM
// needs: bridge, tap, NAT/forwarding, and the DHCP+DNS+MQTT plane used to
// learn a guest's IP (spec.md §4.5). Grounded on the teacher's
// pkg/network (vishvananda/netlink + coreos/go-iptables), generalized from
// a single hardcoded "walkio-br0" network to fireup's configurable bridge
// name and 172.16.0.0/24 addressing plan.
package network

const (
	// DefaultBridge is the bridge device name used when a VM/project does
	// not override it (spec.md §3).
	DefaultBridge = "fcbr0"
	BridgeIP      = "172.16.0.1"
	BridgeCIDR    = "172.16.0.0/24"

	DHCPPoolStart = "172.16.0.2"
	DHCPPoolEnd   = "172.16.0.150"

	DummyInterface = "dummy0"

	MQTTBroker = "tcp://localhost:1883"
	DHCPTopic  = "/dhcp/#"

	KeaConfigPath      = "/etc/kea/kea-dhcp4.conf"
	KeaHookScriptPath  = "/usr/local/bin/kea-mqtt-hook.sh"
	KeaAppArmorPath    = "/etc/apparmor.d/usr.sbin.kea-dhcp4"
	CoreDNSConfigPath  = "/etc/coredns/Corefile"
	SkydnsEtcdPrefix   = "/skydns/firecracker/"
)

// PortMapping describes one host port punched through to a guest port over
// the bridge NAT, as installed by AddPortMappings.
type PortMapping struct {
	HostPort  int
	GuestPort int
	Protocol  string
}
