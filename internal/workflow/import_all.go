package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/pkg/util/slice"
)

// ImportAll walks every configured prefix/connector, lists resources
// under subpath (or the whole tree if empty), and imports each address
// not already materialized on disk or skipped as belonging to a
// neighboring prefix's resource group. Imports across connectors and
// prefixes run in parallel; each connector's own list()+import sequence
// is internally sequential per address but fanned out with the rest.
func ImportAll(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	subpath, prefixFilter, connectorFilter string,
	overwriteExisting bool,
	events chan<- ImportEvent,
) error {
	resourceGroups := cfg.ResourceGroupMap()

	g, ctx := errgroup.WithContext(ctx)

	for prefixName, prefixDef := range cfg.Prefixes {
		prefixName, prefixDef := prefixName, prefixDef
		if prefixFilter != "" && prefixName != prefixFilter {
			continue
		}

		for _, connectorDef := range prefixDef.Connectors {
			connectorDef := connectorDef
			if connectorFilter != "" && connectorDef.Shortname != connectorFilter {
				continue
			}

			g.Go(func() error {
				return importConnector(ctx, cfg, cache, prefixName, prefixDef, connectorDef, subpath, overwriteExisting, resourceGroups, events)
			})
		}
	}

	return g.Wait()
}

func importConnector(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	prefixName string,
	prefixDef config.Prefix,
	connectorDef config.Connector,
	subpath string,
	overwriteExisting bool,
	resourceGroups map[string][]string,
	events chan<- ImportEvent,
) error {
	conn, err := cache.GetOrSpawnConnector(ctx, cfg, prefixName, connectorDef, true)
	if err != nil {
		return fmt.Errorf("spawning %s: %w", connectorDef.Shortname, err)
	}

	connectorSubpaths, err := conn.Subpaths(ctx)
	if err != nil {
		return fmt.Errorf("%s::subpaths(): %w", connectorDef.Shortname, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, connSubpath := range connectorSubpaths {
		connSubpath := connSubpath
		if subpath != "" && !addrMatchesFilter(connSubpath, subpath) && !addrMatchesFilter(subpath, connSubpath) {
			continue
		}

		send(events, ImportEvent{Kind: "start_import", Prefix: prefixName, Addr: connSubpath})

		phyAddrs, err := conn.List(ctx, connSubpath)
		if err != nil {
			return fmt.Errorf("%s::list(%s): %w", connectorDef.Shortname, connSubpath, err)
		}

		for _, phyAddr := range phyAddrs {
			phyAddr := phyAddr
			if subpath != "" && !addrMatchesFilter(phyAddr, subpath) {
				continue
			}
			if skipResourceGroupNeighbor(prefixName, prefixDef, phyAddr, resourceGroups) {
				continue
			}

			g.Go(func() error {
				return ImportResource(ctx, connectorDef.Shortname, conn, prefixName, phyAddr, overwriteExisting, events)
			})
		}
	}

	return g.Wait()
}

// skipResourceGroupNeighbor reports whether phyAddr already has an
// output map under a neighboring prefix in the same resource group, in
// which case this prefix does not re-import it. Resource files in the
// neighbor prefixes are not checked.
func skipResourceGroupNeighbor(prefixName string, prefixDef config.Prefix, phyAddr string, resourceGroups map[string][]string) bool {
	if prefixDef.ResourceGroup == "" {
		return false
	}
	neighbors, ok := resourceGroups[prefixDef.ResourceGroup]
	if !ok {
		return false
	}
	for _, neighbor := range slice.Subtract(neighbors, []string{prefixName}) {
		if exists, err := outputmap.Exists(neighbor, phyAddr); err == nil && exists {
			return true
		}
	}
	return false
}
