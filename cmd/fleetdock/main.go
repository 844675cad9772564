// Command fleetdock is the operator CLI: it runs catalogue operations
// against inventory hosts directly, without going through the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/config"
	"github.com/fleetdock/fleetdock/internal/docker"
	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/format"
	"github.com/fleetdock/fleetdock/internal/hostinfo"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/remote"
	"github.com/fleetdock/fleetdock/internal/secrets"
)

const usage = `usage: fleetdock <command> [args]

commands:
  ls                        list inventory hosts
  exec <host> <cmd> [args]  run a command on a host
  ps <host>                 list containers
  images <host>             list images
  projects <host>           list compose projects
  info <host>               host diagnostics
  stats                     connection pool counters
  encrypt                   encrypt a secret for the inventory (reads stdin)
`

func main() {
	// CLI output goes to stdout; logs stay on stderr at warn level.
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		msg := format.Error(err)
		fmt.Fprint(os.Stderr, msg)
		if !lastCharNewline(msg) {
			fmt.Fprintln(os.Stderr)
		}
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	ctx := context.Background()

	switch command {
	case "ls":
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		for _, h := range inv.Hosts() {
			fmt.Printf("%s\t%s\t%s\n", h.Identity(), h.Protocol, h.Addr)
		}
		return nil

	case "exec":
		if len(args) < 2 {
			return fmt.Errorf("usage: fleetdock exec <host> <cmd> [args]")
		}
		host, err := resolveHost(args[0])
		if err != nil {
			return err
		}
		out, err := executor.Default().Execute(ctx, host, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil

	case "ps":
		host, err := argHost(args)
		if err != nil {
			return err
		}
		out, err := docker.New(executor.Default(), host).ContainerList(ctx)
		if err != nil {
			return err
		}
		md, err := format.Containers(out)
		if err != nil {
			return err
		}
		fmt.Print(md)
		return nil

	case "images":
		host, err := argHost(args)
		if err != nil {
			return err
		}
		out, err := docker.New(executor.Default(), host).ImageList(ctx)
		if err != nil {
			return err
		}
		md, err := format.Images(out)
		if err != nil {
			return err
		}
		fmt.Print(md)
		return nil

	case "projects":
		host, err := argHost(args)
		if err != nil {
			return err
		}
		cfg, _ := config.Load()
		disc := compose.NewDiscovery(executor.Default(), cfg.CacheDir, cfg.CacheTTL)
		projects, err := disc.Discover(ctx, host)
		if err != nil {
			return err
		}
		fmt.Print(format.Projects(projects))
		return nil

	case "info":
		host, err := argHost(args)
		if err != nil {
			return err
		}
		info := hostinfo.New(executor.Default(), host)
		probes := []struct {
			label string
			fn    func(context.Context) (string, error)
		}{
			{"uptime", info.Uptime},
			{"kernel", info.Kernel},
			{"disk", info.DiskUsage},
			{"memory", info.Memory},
			{"docker", info.DockerVersion},
		}
		for _, p := range probes {
			out, err := p.fn(ctx)
			if err != nil {
				fmt.Printf("%s:\terror: %v\n", p.label, err)
				continue
			}
			fmt.Printf("%s:\t%s\n", p.label, out)
		}
		return nil

	case "stats":
		fmt.Print(format.Stats(executor.Default().Stats()))
		return nil

	case "encrypt":
		var plain string
		if _, err := fmt.Fscanln(os.Stdin, &plain); err != nil {
			return fmt.Errorf("read secret from stdin: %w", err)
		}
		enc, err := secrets.Encrypt(plain)
		if err != nil {
			return err
		}
		fmt.Printf("enc:%s\n", enc)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadInventory() (*inventory.Inventory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return inventory.Load(cfg.InventoryPath)
}

func resolveHost(identity string) (remote.Host, error) {
	inv, err := loadInventory()
	if err != nil {
		return remote.Host{}, err
	}
	host, ok := inv.Get(identity)
	if !ok {
		return remote.Host{}, fmt.Errorf("unknown host %q (check the inventory)", identity)
	}
	return host, nil
}

func argHost(args []string) (remote.Host, error) {
	if len(args) < 1 {
		return remote.Host{}, fmt.Errorf("host argument is required")
	}
	return resolveHost(args[0])
}

func lastCharNewline(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '\n'
}
