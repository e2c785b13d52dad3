// Package workflow implements the plan / apply / pull-state / import /
// unbundle / task_exec pipelines: iterate a working set of resource
// files, fan out to connectors, resolve virtual/physical addresses,
// expand output references, and collect per-resource reports.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/template"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// PlanConnector plans one resource address against a single connector:
// resolve virt->phy, fetch current state, read+template the desired file
// on disk (if present), and ask the connector for the ops that reconcile
// them. It always returns a report or an error; Plan is the one that
// returns a nil report for an address no connector's filter claims.
func PlanConnector(ctx context.Context, conn protocol.Connector, prefix, virtAddr string) (*report.PlanReport, error) {
	r := &report.PlanReport{Prefix: prefix, VirtAddr: virtAddr}

	resolution, err := addressing.ResolveVirtToPhy(ctx, conn, virtAddr)
	if err != nil {
		return nil, err
	}
	if resolution.Kind == protocol.VirtToPhyDeferred {
		r.MissingOutputs = resolution.Reads
		return r, nil
	}

	var current []byte
	if resolution.Kind == protocol.VirtToPhyPresent || resolution.Kind == protocol.VirtToPhyNull {
		out, err := conn.Get(ctx, resolution.Phy)
		if err != nil {
			return nil, fmt.Errorf("get(%s): %w", resolution.Phy, err)
		}
		if out != nil {
			current = out.ResourceDefinition
		}
	}

	effectiveAddr := resolution.EffectiveAddr(virtAddr)
	path := filepath.Join(prefix, virtAddr)

	var desired []byte
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if text := string(raw); isValidUTF8(text) {
			tmplResult, err := template.Expand(prefix, text)
			if err != nil {
				return nil, fmt.Errorf("templating %s: %w", path, err)
			}
			if len(tmplResult.Missing) > 0 {
				for ro := range tmplResult.Missing {
					r.MissingOutputs = append(r.MissingOutputs, ro)
				}
				return r, nil
			}
			desired = []byte(tmplResult.Body)
		} else {
			desired = raw
		}
	}
	// desired == nil here means the file does not exist on disk: the
	// connector is expected to plan a deletion.

	ops, err := conn.Plan(ctx, effectiveAddr, current, desired)
	if err != nil {
		return nil, fmt.Errorf("plan(%s): %w", effectiveAddr, err)
	}
	r.ConnectorOps = ops
	return r, nil
}

func isValidUTF8(s string) bool {
	return utf8.ValidString(s)
}

// Plan resolves which connector under prefix claims virtAddr (via the
// cache's cheap filter_cached), then plans it. connectorFilter, if
// non-empty, restricts the search to one connector shortname.
func Plan(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	prefix, virtAddr, connectorFilter string,
) (*report.PlanReport, error) {
	prefixDef, ok := cfg.Prefixes[prefix]
	if !ok {
		return nil, nil
	}

	for _, connectorDef := range prefixDef.Connectors {
		if connectorFilter != "" && connectorDef.Shortname != connectorFilter {
			continue
		}

		conn, err := cache.GetOrSpawnConnector(ctx, cfg, prefix, connectorDef, true)
		if err != nil {
			return nil, fmt.Errorf("spawning %s: %w", connectorDef.Shortname, err)
		}

		result, err := cache.FilterCached(ctx, connectorDef.Shortname, prefix, virtAddr)
		if err != nil {
			return nil, fmt.Errorf("filter(%s): %w", virtAddr, err)
		}
		if result != protocol.FilterResource {
			continue
		}

		r, err := PlanConnector(ctx, conn, prefix, virtAddr)
		if err != nil {
			return nil, err
		}
		if r != nil {
			r.Shortname = connectorDef.Shortname
		}
		return r, nil
	}
	return nil, nil
}

// addrMatchesFilter reports whether addr falls under filter, or filter
// falls under addr, so a connector subpath query and a user-requested
// subpath can each be the more specific of the two.
func addrMatchesFilter(addr, filter string) bool {
	addr = strings.Trim(filepath.ToSlash(addr), "/")
	filter = strings.Trim(filepath.ToSlash(filter), "/")
	if filter == "" || filter == "." || addr == filter {
		return true
	}
	return strings.HasPrefix(addr, filter+"/") || strings.HasPrefix(filter, addr+"/")
}
