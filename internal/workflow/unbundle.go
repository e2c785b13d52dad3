package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// Unbundle finds the connector claiming path as a Bundle resource,
// passes it the file's contents, and writes each returned
// UnbundleElement under the same prefix, returning the paths written.
// Child files that already exist are left alone unless overbundle is
// set.
func Unbundle(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	path, connectorFilter string,
	overbundle bool,
) ([]string, error) {
	prefix, virtAddr, ok := addressing.SplitPrefixAddr(cfg, path)
	if !ok {
		return nil, nil
	}
	prefixDef, ok := cfg.Prefixes[prefix]
	if !ok {
		return nil, nil
	}

	body, err := os.ReadFile(filepath.Join(prefix, virtAddr))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
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
		if result != protocol.FilterBundle {
			continue
		}

		elements, err := conn.Unbundle(ctx, virtAddr, body)
		if err != nil {
			return nil, fmt.Errorf("%s::unbundle(%s): %w", connectorDef.Shortname, virtAddr, err)
		}

		written := make([]string, 0, len(elements))
		for _, el := range elements {
			outPath := filepath.Join(prefix, filepath.Dir(virtAddr), el.Filename)
			if !overbundle {
				if _, err := os.Stat(outPath); err == nil {
					continue
				}
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating directory for %s: %w", outPath, err)
			}
			if err := os.WriteFile(outPath, el.Contents, 0o644); err != nil {
				return nil, fmt.Errorf("writing %s: %w", outPath, err)
			}
			written = append(written, outPath)
		}
		return written, nil
	}
	return nil, nil
}
