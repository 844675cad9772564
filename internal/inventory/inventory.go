// Package inventory loads the fleet host inventory from a TOML file.
//
// Example:
//
//	[[host]]
//	name = "web-01"
//	addr = "10.0.0.11"
//	user = "ops"
//	key_path = "/etc/fleetdock/keys/web-01"
//
//	[[host]]
//	name = "local"
//	protocol = "local"
//
// Passwords may be stored encrypted (hex AES-256-GCM, see internal/secrets)
// by prefixing the value with "enc:".
package inventory

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fleetdock/fleetdock/internal/remote"
	"github.com/fleetdock/fleetdock/internal/secrets"
)

// Inventory is the loaded fleet. Host lookup is by identity.
type Inventory struct {
	hosts map[string]remote.Host
	order []string
}

type fileFormat struct {
	Host []remote.Host `toml:"host"`
}

// encPrefix marks a password value as encrypted at rest.
const encPrefix = "enc:"

// Load reads and validates the inventory file at path.
func Load(path string) (*Inventory, error) {
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return fromHosts(f.Host)
}

// Parse is Load for in-memory TOML, used by tests and embedded configs.
func Parse(data string) (*Inventory, error) {
	var f fileFormat
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return fromHosts(f.Host)
}

func fromHosts(hosts []remote.Host) (*Inventory, error) {
	inv := &Inventory{hosts: make(map[string]remote.Host, len(hosts))}

	for i, h := range hosts {
		if h.Protocol == "" {
			h.Protocol = "ssh"
		}
		if err := validate(h); err != nil {
			return nil, fmt.Errorf("inventory host %d: %w", i, err)
		}

		// Same identity twice means conflicting descriptors — a
		// configuration error, rejected here so the pool never sees it.
		key := h.Identity()
		if _, dup := inv.hosts[key]; dup {
			return nil, fmt.Errorf("inventory: duplicate host identity %q", key)
		}

		if strings.HasPrefix(h.Password, encPrefix) {
			plain, err := secrets.Decrypt(strings.TrimPrefix(h.Password, encPrefix))
			if err != nil {
				return nil, fmt.Errorf("inventory host %q: decrypt password: %w", key, err)
			}
			h.Password = plain
		}

		inv.hosts[key] = h
		inv.order = append(inv.order, key)
	}
	return inv, nil
}

func validate(h remote.Host) error {
	switch h.Protocol {
	case "ssh":
		if h.Addr == "" {
			return fmt.Errorf("host %q: addr is required for ssh", h.Name)
		}
		if h.User == "" {
			return fmt.Errorf("host %q: user is required for ssh", h.Name)
		}
		if h.KeyPath == "" && h.Password == "" {
			return fmt.Errorf("host %q: key_path or password is required for ssh", h.Name)
		}
		if h.Port < 0 || h.Port > 65535 {
			return fmt.Errorf("host %q: invalid port %d", h.Name, h.Port)
		}
	case "local":
		if h.Name == "" {
			return fmt.Errorf("local host: name is required")
		}
	default:
		return fmt.Errorf("host %q: unsupported protocol %q", h.Name, h.Protocol)
	}
	if h.Identity() == "" {
		return fmt.Errorf("host: name or addr is required")
	}
	return nil
}

// Get returns the host with the given identity.
func (inv *Inventory) Get(identity string) (remote.Host, bool) {
	h, ok := inv.hosts[identity]
	return h, ok
}

// Hosts returns all hosts in file order.
func (inv *Inventory) Hosts() []remote.Host {
	out := make([]remote.Host, 0, len(inv.order))
	for _, key := range inv.order {
		out = append(out, inv.hosts[key])
	}
	return out
}

// Len returns the number of configured hosts.
func (inv *Inventory) Len() int { return len(inv.hosts) }
