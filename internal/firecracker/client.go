package firecracker

import (
	"context"
	"fmt"

	fcsdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/sirupsen/logrus"
)

// apiClient is the subset of firecracker-go-sdk's Firecracker interface the
// driver needs, so tests can substitute a fake.
type apiClient interface {
	PutLogger(ctx context.Context, logger *models.Logger) error
	PutMachineConfiguration(ctx context.Context, cfg *models.MachineConfiguration) error
	PutGuestBootSource(ctx context.Context, source *models.BootSource) error
	PutGuestDriveByID(ctx context.Context, driveID string, drive *models.Drive) error
	PutGuestNetworkInterfaceByID(ctx context.Context, ifaceID string, iface *models.NetworkInterface) error
	CreateSyncAction(ctx context.Context, info *models.InstanceActionInfo) error
}

// sdkClient adapts firecracker-go-sdk's *FirecrackerClient (whose methods
// return SDK response types we don't care about) to apiClient.
type sdkClient struct {
	inner *fcsdk.FirecrackerClient
}

func newSDKClient(socketPath string, debug bool) *sdkClient {
	logger := logrus.NewEntry(logrus.StandardLogger())
	return &sdkClient{inner: fcsdk.NewFirecrackerClient(socketPath, logger, debug)}
}

func (c *sdkClient) PutLogger(ctx context.Context, logger *models.Logger) error {
	_, err := c.inner.PutLogger(ctx, logger)
	return err
}

func (c *sdkClient) PutMachineConfiguration(ctx context.Context, cfg *models.MachineConfiguration) error {
	_, err := c.inner.PutMachineConfiguration(ctx, cfg)
	return err
}

func (c *sdkClient) PutGuestBootSource(ctx context.Context, source *models.BootSource) error {
	_, err := c.inner.PutGuestBootSource(ctx, source)
	return err
}

func (c *sdkClient) PutGuestDriveByID(ctx context.Context, driveID string, drive *models.Drive) error {
	_, err := c.inner.PutGuestDriveByID(ctx, driveID, drive)
	return err
}

func (c *sdkClient) PutGuestNetworkInterfaceByID(ctx context.Context, ifaceID string, iface *models.NetworkInterface) error {
	_, err := c.inner.PutGuestNetworkInterfaceByID(ctx, ifaceID, iface)
	return err
}

func (c *sdkClient) CreateSyncAction(ctx context.Context, info *models.InstanceActionInfo) error {
	_, err := c.inner.CreateSyncAction(ctx, info)
	return err
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func errWrap(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w", &ConfigureStepError{Step: step, Cause: err})
}
