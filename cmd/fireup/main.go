// Command fireup is the CLI front-end (C9): a thin subcommand dispatcher
// over lifecycle.Controller, per spec.md's explicit "interfaces only"
// scoping for this layer. It talks to the same SQLite inventory fireupd
// uses directly rather than over HTTP, since ssh/scp stdio passthrough
// (out of scope for the HTTP façade) needs direct process control anyway.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maxdollinger/fireup/internal/config"
	"github.com/maxdollinger/fireup/internal/db"
	fc "github.com/maxdollinger/fireup/internal/firecracker"
	"github.com/maxdollinger/fireup/internal/image"
	"github.com/maxdollinger/fireup/internal/lifecycle"
	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/lock"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx := context.Background()
	controller, cleanup, err := newController(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer cleanup()

	cmd, args := os.Args[1], os.Args[2:]
	if err := dispatch(ctx, controller, cmd, args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, c *lifecycle.Controller, cmd string, args []string) error {
	switch cmd {
	case "up":
		return runUp(ctx, c, args)
	case "start":
		return withName(args, func(name string) error {
			_, err := c.Start(ctx, name)
			return err
		})
	case "stop":
		return withName(args, func(name string) error { return c.Stop(ctx, name) })
	case "restart":
		return withName(args, func(name string) error {
			_, err := c.Restart(ctx, name)
			return err
		})
	case "rm":
		return withName(args, func(name string) error { return c.Rm(ctx, name) })
	case "reset":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		return c.Reset(ctx, name)
	case "status":
		return withName(args, func(name string) error {
			vm, err := c.Status(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", vm.Name, vm.Status, vm.IPAddress.String)
			return nil
		})
	case "ssh":
		return withName(args, func(name string) error {
			argv, err := c.SSHCommand(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(argv)
			return nil
		})
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runUp(ctx context.Context, c *lifecycle.Controller, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	opts := lifecycle.UpOptions{ProjectDir: cwd, VCPU: 1, Memory: 512, Distro: "alpine"}

	if cfg, err := config.Load(cwd); err == nil {
		opts.Distro = cfg.Distro
		opts.VCPU = cfg.VM.VCPU
		opts.Memory = cfg.VM.Memory
		opts.Vmlinux = cfg.VM.Vmlinux
		opts.Rootfs = cfg.VM.Rootfs
		opts.BootArgs = cfg.VM.BootArgs
		opts.Bridge = cfg.VM.Bridge
		opts.Tap = cfg.VM.Tap
		opts.ApiSocket = cfg.VM.ApiSocket
		opts.MacAddress = cfg.VM.Mac
	}

	if len(args) > 0 {
		opts.Name = args[0]
	}

	vm, err := c.Up(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s is up (%s)\n", vm.Name, vm.IPAddress.String)
	return nil
}

func withName(args []string, fn func(name string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("missing vm name")
	}
	return fn(args[0])
}

func newController(ctx context.Context) (*lifecycle.Controller, func(), error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve state dir: %w", err)
	}

	conn, err := db.Open(ctx, config.DBPath(stateDir))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	r := runner.New()
	fcDriver := fc.NewDriver(r)
	images := image.NewRegistry(r, lock.NewNoOpLocker())
	etcd := []string{"http://127.0.0.1:2379"}
	if v := os.Getenv("FIREUP_ETCD_ENDPOINTS"); v != "" {
		etcd = []string{v}
	}

	c := lifecycle.New(conn, images, fcDriver, r, stateDir, etcd)
	return c, func() { conn.Close() }, nil
}

func usage() {
	fmt.Println(`usage: fireup <command> [args]

commands:
  up [name]        create or re-enter a microVM for the current project
  start <name>     start a stopped microVM
  stop <name>      stop a running microVM
  restart <name>   restart a microVM
  rm <name>        stop and delete a microVM
  reset [name]     clear cached image artifacts for one distro, or all
  status <name>    print a microVM's current status
  ssh <name>       print the ssh command to reach a microVM`)
}
