package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/maxdollinger/fireup/internal/api"
	"github.com/maxdollinger/fireup/internal/config"
	"github.com/maxdollinger/fireup/internal/db"
	"github.com/maxdollinger/fireup/internal/db/models"
	fc "github.com/maxdollinger/fireup/internal/firecracker"
	"github.com/maxdollinger/fireup/internal/image"
	"github.com/maxdollinger/fireup/internal/lifecycle"
	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

// fireupd is the always-on daemon: it serves the HTTP API façade (C8) over
// the SQLite inventory. fireup's CLI front-end does not go through it; the
// CLI opens the same inventory directly. At startup it
// reconciles orphaned state left behind by an unclean shutdown, mirroring
// the teacher's cmd/walkd entrypoint pattern of "open db, apply schema,
// then get out of the way".
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	stateDir, err := config.StateDir()
	if err != nil {
		fmt.Println("resolve state dir: " + err.Error())
		os.Exit(1)
	}

	conn, err := db.Open(ctx, config.DBPath(stateDir))
	if err != nil {
		fmt.Println("open database: " + err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	r := runner.New()
	fcDriver := fc.NewDriver(r)

	if err := reconcileOrphans(ctx, logger, conn, fcDriver); err != nil {
		logger.WarnContext(ctx, "orphan reconciliation failed", "error", err)
	}

	images := image.NewRegistry(r, lock.NewNoOpLocker())
	controller := lifecycle.New(conn, images, fcDriver, r, stateDir, etcdEndpointsFromEnv())

	addr := os.Getenv("FIREUP_LISTEN_ADDR")
	if addr == "" {
		addr = "127.0.0.1:7780"
	}

	server := api.NewServer(controller)
	logger.InfoContext(ctx, "fireupd listening", "addr", addr)
	if err := server.ListenAndServe(addr); err != nil {
		logger.ErrorContext(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}

// reconcileOrphans marks every row STOPPED and kills any leftover
// firecracker processes, since a row left RUNNING across a daemon restart
// can no longer be trusted to reflect a live hypervisor (SPEC_FULL.md §12).
func reconcileOrphans(ctx context.Context, logger *slog.Logger, conn *sql.DB, fcDriver *fc.Driver) error {
	vms := models.NewVMRepository(conn)
	if err := vms.UpdateAllStatus(ctx, models.StatusStopped); err != nil {
		return fmt.Errorf("mark all vms stopped: %w", err)
	}

	if err := fcDriver.StopAll(ctx); err != nil {
		return fmt.Errorf("stop orphaned firecracker processes: %w", err)
	}

	logger.InfoContext(ctx, "reconciled orphaned vms from a prior shutdown")
	return nil
}

func etcdEndpointsFromEnv() []string {
	if v := os.Getenv("FIREUP_ETCD_ENDPOINTS"); v != "" {
		return []string{v}
	}
	return []string{"http://127.0.0.1:2379"}
}
