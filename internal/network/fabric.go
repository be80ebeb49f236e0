package network

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/maxdollinger/fireup/internal/runner"
)

// FabricOptions parameterizes EnsureFabric for one host.
type FabricOptions struct {
	Bridge       string
	EtcdEndpoint string
}

// EnsureFabric brings up every host-wide (not per-VM) piece of the network
// fabric: bridge, NAT/forwarding, DHCP, DNS, and the MQTT broker. The
// bridge is brought up first (DHCP enslaves dummy0 to it); the other four
// steps are independently idempotent, so they then run concurrently via
// errgroup — grounded on the teacher's go.mod carrying golang.org/x/sync
// without using it; fireup is the first place in the pack's derived code
// that actually calls errgroup.
func EnsureFabric(ctx context.Context, r *runner.Runner, opts FabricOptions) error {
	if err := EnsureBridge(opts.Bridge); err != nil {
		return fmt.Errorf("ensure bridge: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := EnableNAT(); err != nil {
			return fmt.Errorf("enable nat: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := EnsureMosquitto(gctx, r); err != nil {
			return fmt.Errorf("ensure mosquitto: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := EnsureDHCP(gctx, r, opts.Bridge); err != nil {
			return fmt.Errorf("ensure dhcp: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := EnsureDNS(gctx, r, opts.EtcdEndpoint); err != nil {
			return fmt.Errorf("ensure dns: %w", err)
		}
		return nil
	})

	return g.Wait()
}
