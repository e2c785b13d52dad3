// Package addressing provides the virtual<->physical resource address
// resolution helpers shared by the workflow engine. A connector's
// AddrVirtToPhy/AddrPhyToVirt are pure, per-connector-lifetime
// functions; this package only adds the host-side bookkeeping: joining
// addresses safely under a prefix root, normalizing resolutions, and
// mapping repo paths to prefixes. Output-map link following lives in
// internal/outputmap.
package addressing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// JoinUnderPrefix resolves addr relative to prefix, clamping it inside
// prefix ("../" components cannot climb above it, so no error is
// returned for them), mirroring the sandbox's /repo confinement.
func JoinUnderPrefix(prefix, addr string) (string, error) {
	full, err := securejoin.SecureJoin(prefix, addr)
	if err != nil {
		return "", fmt.Errorf("joining address %q under prefix %q: %w", addr, prefix, err)
	}
	return full, nil
}

// Resolution is the outcome of resolving one virtual address.
type Resolution struct {
	Kind  protocol.VirtToPhyKind
	Phy   string // valid iff Kind is Present or Null
	Reads []protocol.ReadOutput
}

// ResolveVirtToPhy asks the connector to resolve a virtual address,
// normalizing its VirtToPhyOutput into a Resolution.
func ResolveVirtToPhy(ctx context.Context, conn protocol.Connector, virtAddr string) (*Resolution, error) {
	out, err := conn.AddrVirtToPhy(ctx, virtAddr)
	if err != nil {
		return nil, fmt.Errorf("addr_virt_to_phy(%s): %w", virtAddr, err)
	}
	return &Resolution{Kind: out.Kind, Phy: out.Path, Reads: out.Reads}, nil
}

// EffectiveAddr picks the address a connector call should target: the
// physical address when present (Present or Null), falling back to the
// virtual address (NotPresent).
func (r *Resolution) EffectiveAddr(virtAddr string) string {
	switch r.Kind {
	case protocol.VirtToPhyPresent, protocol.VirtToPhyNull:
		return r.Phy
	default:
		return virtAddr
	}
}

// ResolvePhyToVirt is the inverse lookup, defaulting to identity when
// the connector declines to answer.
func ResolvePhyToVirt(ctx context.Context, conn protocol.Connector, phyAddr string) (string, error) {
	v, err := conn.AddrPhyToVirt(ctx, phyAddr)
	if err != nil {
		return "", fmt.Errorf("addr_phy_to_virt(%s): %w", phyAddr, err)
	}
	if v == nil {
		return phyAddr, nil
	}
	return *v, nil
}

// SplitPrefixAddr finds which configured prefix a repo-relative path
// falls under and returns the remaining address within it, picking the
// longest matching prefix when more than one could apply.
func SplitPrefixAddr(cfg *config.AutoschematicConfig, path string) (prefix, addr string, ok bool) {
	clean := filepath.ToSlash(filepath.Clean(path))
	var bestPrefix string
	var bestLen = -1
	for name := range cfg.Prefixes {
		cleanName := filepath.ToSlash(filepath.Clean(name))
		if cleanName == "." {
			continue
		}
		if clean == cleanName || strings.HasPrefix(clean, cleanName+"/") {
			if len(cleanName) > bestLen {
				bestLen = len(cleanName)
				bestPrefix = name
			}
		}
	}
	if bestLen < 0 {
		return "", "", false
	}
	rest := strings.TrimPrefix(clean, filepath.ToSlash(filepath.Clean(bestPrefix)))
	rest = strings.TrimPrefix(rest, "/")
	return bestPrefix, rest, true
}
