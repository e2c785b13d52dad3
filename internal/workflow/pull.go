package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/internal/template"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// reverseTemplateMinLen keeps short, collision-prone output values (like
// "1" or "eu") from being rewritten back into out:// references.
const reverseTemplateMinLen = 4

// PullConnector refreshes one resource's on-disk file and output map
// from the connector's live remote state. If deleteMissing is set and
// the connector reports the resource absent, the local file and its
// output maps are removed instead of left stale.
func PullConnector(ctx context.Context, conn protocol.Connector, prefix, virtAddr string, deleteMissing bool) (*report.PullReport, error) {
	r := &report.PullReport{Prefix: prefix, VirtAddr: virtAddr}

	resolution, err := addressing.ResolveVirtToPhy(ctx, conn, virtAddr)
	if err != nil {
		return nil, err
	}
	if resolution.Kind == protocol.VirtToPhyNotPresent || resolution.Kind == protocol.VirtToPhyDeferred {
		return r, nil
	}
	phyAddr := resolution.EffectiveAddr(virtAddr)

	out, err := conn.Get(ctx, phyAddr)
	if err != nil {
		return nil, fmt.Errorf("get(%s): %w", phyAddr, err)
	}

	path := filepath.Join(prefix, virtAddr)

	if out == nil {
		if !deleteMissing {
			return r, nil
		}
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("removing %s: %w", path, err)
			}
			r.Deleted = true
			r.WroteFiles = append(r.WroteFiles, path)
		}
		if deletedPath, err := outputmap.Delete(prefix, virtAddr); err != nil {
			return nil, err
		} else if deletedPath != "" {
			r.WroteFiles = append(r.WroteFiles, deletedPath)
		}
		if phyAddr != virtAddr {
			if deletedPath, err := outputmap.Delete(prefix, phyAddr); err != nil {
				return nil, err
			} else if deletedPath != "" {
				r.WroteFiles = append(r.WroteFiles, deletedPath)
			}
		}
		return r, nil
	}

	var local []byte
	if raw, err := os.ReadFile(path); err == nil {
		local = raw
	}

	differs := true
	if local != nil {
		same, err := conn.Eq(ctx, phyAddr, out.ResourceDefinition, local)
		if err != nil {
			return nil, fmt.Errorf("eq(%s): %w", phyAddr, err)
		}
		differs = !same
	}

	if differs {
		body := out.ResourceDefinition
		if local != nil && isValidUTF8(string(local)) && isValidUTF8(string(body)) {
			// Keep the user's out:// references and comments intact when
			// refreshing, instead of flattening them to raw remote values.
			rewritten, err := template.ReverseExpand(prefix, string(local), string(body), reverseTemplateMinLen)
			if err != nil {
				return nil, fmt.Errorf("reverse-templating %s: %w", path, err)
			}
			rewritten = template.ApplyComments(rewritten, template.ExtractComments(string(local)))
			body = []byte(rewritten)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		r.Updated = true
		r.WroteFiles = append(r.WroteFiles, path)
	}

	if len(out.Outputs) > 0 {
		delta := make(protocol.OutputMap, len(out.Outputs))
		for k, v := range out.Outputs {
			v := v
			delta[k] = &v
		}
		writtenPath, err := outputmap.ApplyDelta(prefix, virtAddr, delta)
		if err != nil {
			return nil, fmt.Errorf("applying output delta for %s: %w", virtAddr, err)
		}
		if writtenPath != "" {
			r.WroteFiles = append(r.WroteFiles, writtenPath)
			if phyAddr != virtAddr {
				linkPath, err := outputmap.WriteLink(prefix, phyAddr, virtAddr)
				if err != nil {
					return nil, err
				}
				r.WroteFiles = append(r.WroteFiles, linkPath)
			}
		}
	}

	// Delete any output keys the remote no longer reports: merge the
	// existing map against the delta's key set so keys absent from
	// the remote response (rather than explicitly nulled) are pruned
	// too.
	existing, err := outputmap.Read(prefix, virtAddr)
	if err == nil && len(existing) > 0 {
		prune := protocol.OutputMap{}
		for k := range existing {
			if _, reported := out.Outputs[k]; !reported {
				prune[k] = nil
			}
		}
		if len(prune) > 0 {
			if writtenPath, err := outputmap.ApplyDelta(prefix, virtAddr, prune); err == nil && writtenPath != "" {
				r.WroteFiles = append(r.WroteFiles, writtenPath)
			}
		}
	}

	return r, nil
}

// PullState locates the connector claiming virtAddr within prefix and
// refreshes it from remote state. connectorFilter, if non-empty,
// restricts the search to one connector shortname.
func PullState(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	prefix, virtAddr, connectorFilter string,
	deleteMissing bool,
) (*report.PullReport, error) {
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

		r, err := PullConnector(ctx, conn, prefix, virtAddr, deleteMissing)
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
