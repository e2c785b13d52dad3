// Package config models autoschematic.ron (prefixes, connectors,
// launch specs) and autoschematic.rbac.ron. The body is parsed as JSON;
// the ".ron" filename is kept as the on-disk convention.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/autoschematic-sh/autoschematic/pkg/util/maps"
)

// TransportKind selects the RPC bridge variant a connector speaks.
type TransportKind string

const (
	TransportTarpc TransportKind = "tarpc"
	TransportGRPC  TransportKind = "grpc"
)

// SpecKind discriminates a connector's launch strategy.
type SpecKind string

const (
	SpecBinary SpecKind = "binary"
	SpecCargo  SpecKind = "cargo"
	SpecPython SpecKind = "python"
)

// Spec is a connector's launch strategy: exactly one of Binary, Cargo, or
// Python variants is populated, selected by Kind.
type Spec struct {
	Kind SpecKind `json:"kind"`

	// Binary
	Path string   `json:"path,omitempty"`
	Args []string `json:"args,omitempty"`

	// Cargo
	Package  string   `json:"package,omitempty"`
	Version  string   `json:"version,omitempty"`
	Features []string `json:"features,omitempty"`

	// Python
	Module string `json:"module,omitempty"`
	Class  string `json:"class,omitempty"`

	Transport TransportKind `json:"transport"`
}

// Connector is one (shortname, spec, env, env_file) tuple declaring how
// to launch a connector and the environment it receives.
type Connector struct {
	Shortname string            `json:"shortname"`
	Spec      Spec              `json:"spec"`
	Env       map[string]string `json:"env,omitempty"`
	EnvFile   string            `json:"env_file,omitempty"`
}

// Prefix groups a set of connectors operating under one repository
// subdirectory, with its own env/secret scope.
type Prefix struct {
	Path          string            `json:"path"`
	Env           map[string]string `json:"env,omitempty"`
	EnvFile       string            `json:"env_file,omitempty"`
	Connectors    []Connector       `json:"connectors"`
	ResourceGroup string            `json:"resource_group,omitempty"`
}

// AutoschematicConfig is the parsed form of autoschematic.ron.
type AutoschematicConfig struct {
	Prefixes map[string]Prefix `json:"prefixes"`
}

// Load parses an autoschematic.ron file (JSON body) from path.
func Load(path string) (*AutoschematicConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg AutoschematicConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks structural constraints `autoschematic validate` exists
// to surface before any connector is spawned: every prefix must name a
// path, every connector within a prefix must carry a unique shortname,
// and every spec must declare a transport and a launch strategy
// consistent with its Kind.
func (c *AutoschematicConfig) Validate() error {
	for prefixName, p := range c.Prefixes {
		if p.Path == "" {
			return fmt.Errorf("prefix %q: missing path", prefixName)
		}
		seen := map[string]bool{}
		for _, conn := range p.Connectors {
			if conn.Shortname == "" {
				return fmt.Errorf("prefix %q: connector with empty shortname", prefixName)
			}
			if maps.HasKey(seen, conn.Shortname) {
				return fmt.Errorf("prefix %q: duplicate connector shortname %q", prefixName, conn.Shortname)
			}
			seen[conn.Shortname] = true
			if err := conn.Spec.validate(); err != nil {
				return fmt.Errorf("prefix %q, connector %q: %w", prefixName, conn.Shortname, err)
			}
		}
	}
	return nil
}

func (s Spec) validate() error {
	switch s.Transport {
	case TransportTarpc, TransportGRPC:
	default:
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	switch s.Kind {
	case SpecBinary:
		if s.Path == "" {
			return fmt.Errorf("binary spec missing path")
		}
	case SpecCargo:
		if s.Package == "" || s.Version == "" {
			return fmt.Errorf("cargo spec missing package or version")
		}
	case SpecPython:
		if s.Module == "" || s.Class == "" {
			return fmt.Errorf("python spec missing module or class")
		}
	default:
		return fmt.Errorf("unknown spec kind %q", s.Kind)
	}
	return nil
}

// ResourceGroupMap inverts Prefixes by ResourceGroup -- used by the
// import pipeline to skip resources already materialized in a
// neighboring prefix of the same group.
func (c *AutoschematicConfig) ResourceGroupMap() map[string][]string {
	out := map[string][]string{}
	for name, p := range c.Prefixes {
		if p.ResourceGroup == "" {
			continue
		}
		out[p.ResourceGroup] = append(out[p.ResourceGroup], name)
	}
	return out
}
