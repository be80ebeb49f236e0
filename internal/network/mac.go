package network

import (
	"crypto/rand"
	"fmt"
)

// GenerateMACAddress returns a random locally-administered, unicast MAC
// address: first octet `& 0xFC | 0x02` per spec.md §4.5/§8. Grounded on
// original_source/crates/firecracker-vm/src/mac.rs::generate_unique_mac,
// which the teacher's own SHA-256-derived GenerateMACAddress does not
// reproduce (that scheme is deterministic, not random, and does not clear
// the multicast bit) — see DESIGN.md.
func GenerateMACAddress() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate random mac: %w", err)
	}

	b[0] = (b[0] & 0xFC) | 0x02

	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5]), nil
}

// IsLocallyAdministeredUnicast reports whether mac's first octet has bits
// 0x03 set to 0x02 (locally administered, unicast) — the invariant spec.md
// §8's MAC generator property test asserts.
func IsLocallyAdministeredUnicast(firstByte byte) bool {
	return firstByte&0x03 == 0x02
}
