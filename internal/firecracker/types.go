package firecracker

// BootConfig describes the guest kernel and its command line.
type BootConfig struct {
	KernelImagePath string
	BootArgs        string
}

// DriveConfig describes one virtio-block device attached to the microVM.
type DriveConfig struct {
	ID           string
	PathOnHost   string
	IsRootDevice bool
	IsReadOnly   bool
}

// NetConfig describes the single tap-backed network interface a microVM
// gets (spec.md microVMs are always single-homed on the bridge).
type NetConfig struct {
	IfaceID     string
	HostDevName string
	MacAddress  string
}

// MachineConfig mirrors Firecracker's vCPU/memory configuration.
type MachineConfig struct {
	VCPUCount  int64
	MemSizeMib int64
}

// Spec fully describes one microVM's Firecracker-side configuration, in the
// order PUT calls must land in: logger, boot source, drives, network
// interface, machine config, then InstanceStart.
type Spec struct {
	SocketPath string
	LogPath    string
	LogLevel   string
	Boot       BootConfig
	Drives     []DriveConfig
	Net        NetConfig
	Machine    MachineConfig
}
