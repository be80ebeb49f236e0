package lifecycle

import (
	"database/sql"
	"log/slog"
	"strings"

	"github.com/maxdollinger/fireup/internal/db/models"
	fc "github.com/maxdollinger/fireup/internal/firecracker"
	"github.com/maxdollinger/fireup/internal/image"
	"github.com/maxdollinger/fireup/internal/network"
	"github.com/maxdollinger/fireup/internal/runner"
)

// Controller binds C2-C6 (config/paths, persistence, image assembly,
// network fabric, the Firecracker driver) into the VM lifecycle operations
// described in spec.md §4.7. Grounded on the teacher's internal/builder
// struct-with-injected-collaborators shape.
type Controller struct {
	VMs    *models.VMRepository
	Drives *models.DriveRepository

	Images *image.Registry
	FC     *fc.Driver
	Runner *runner.Runner

	StateDir      string
	EtcdEndpoints []string

	logger *slog.Logger
}

// New builds a Controller over an already-migrated database handle.
func New(db *sql.DB, images *image.Registry, driver *fc.Driver, r *runner.Runner, stateDir string, etcdEndpoints []string) *Controller {
	image.SetAssetDir(stateDir)
	return &Controller{
		VMs:           models.NewVMRepository(db),
		Drives:        models.NewDriveRepository(db),
		Images:        images,
		FC:            driver,
		Runner:        r,
		StateDir:      stateDir,
		EtcdEndpoints: etcdEndpoints,
		logger:        slog.Default(),
	}
}

// tapRetryLimit bounds allocateTapWithRetry's select-and-recheck loop for
// concurrent tap allocation.
const tapRetryLimit = 5

func (c *Controller) fabricOptions(bridge string) network.FabricOptions {
	if bridge == "" {
		bridge = network.DefaultBridge
	}
	return network.FabricOptions{
		Bridge:       bridge,
		EtcdEndpoint: strings.Join(c.EtcdEndpoints, " "),
	}
}
