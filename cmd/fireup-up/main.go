// Command fireup-up is a demo binary exercising the full up() pipeline for
// a single hardcoded microVM, mirroring the teacher's cmd/walk-builder: no
// flags, just a straight-line run with timing and log output at the end.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maxdollinger/fireup/internal/config"
	"github.com/maxdollinger/fireup/internal/db"
	fc "github.com/maxdollinger/fireup/internal/firecracker"
	"github.com/maxdollinger/fireup/internal/image"
	"github.com/maxdollinger/fireup/internal/lifecycle"
	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

func main() {
	startTime := time.Now()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	stateDir, err := config.StateDir()
	if err != nil {
		fmt.Println("resolve state dir: " + err.Error())
		os.Exit(1)
	}
	logger = logger.With("stateDir", stateDir)

	conn, err := db.Open(ctx, config.DBPath(stateDir))
	if err != nil {
		fmt.Println("open database: " + err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	r := runner.New()
	fcDriver := fc.NewDriver(r)
	images := image.NewRegistry(r, lock.NewNoOpLocker())
	controller := lifecycle.New(conn, images, fcDriver, r, stateDir, []string{"http://127.0.0.1:2379"})

	vm, err := controller.Up(ctx, lifecycle.UpOptions{
		Distro: "alpine",
		VCPU:   1,
		Memory: 512,
	})
	if err != nil {
		fmt.Printf("Failed to bring up VM: %s\n", err)
		os.Exit(1)
	}

	logger = logger.With(
		"vm_name", vm.Name,
		"vm_pid", vm.PID.Int64,
		"vm_ip", vm.IPAddress.String,
	)
	logger.Info("Finished execution", "exec_time", time.Since(startTime).Seconds())
}
