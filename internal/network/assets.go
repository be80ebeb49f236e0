package network

import "embed"

//go:embed assets/kea-mqtt-hook.sh assets/usr.sbin.kea-dhcp4
var assetFiles embed.FS

func readAsset(name string) ([]byte, error) {
	return assetFiles.ReadFile("assets/" + name)
}
