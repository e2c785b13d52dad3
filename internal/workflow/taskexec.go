package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/template"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// TaskExecConnector carries out one task_exec iteration against conn for
// the task body on disk at prefix/virtAddr, templating it first. A nil
// result with a nil error means the task body could not be fully
// resolved (missing outputs) or the virt address has no on-disk file
// (not yet a material task).
//
// Note: unlike Plan, a deferred (unresolved out://) reference here is
// silently treated as "not ready yet" rather than surfaced;
// TaskExecOutput has no field to carry missing outputs through.
func TaskExecConnector(ctx context.Context, conn protocol.Connector, prefix, virtAddr string, arg, state []byte) (*protocol.TaskExecOutput, error) {
	resolution, err := addressing.ResolveVirtToPhy(ctx, conn, virtAddr)
	if err != nil {
		return nil, err
	}
	if resolution.Kind == protocol.VirtToPhyDeferred {
		return nil, nil
	}

	path := filepath.Join(prefix, virtAddr)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	body := raw
	if text := string(raw); isValidUTF8(text) {
		tmplResult, err := template.Expand(prefix, text)
		if err != nil {
			return nil, fmt.Errorf("templating %s: %w", path, err)
		}
		if len(tmplResult.Missing) > 0 {
			return nil, nil
		}
		body = []byte(tmplResult.Body)
	}

	out, err := conn.TaskExec(ctx, virtAddr, body, arg, state)
	if err != nil {
		return nil, fmt.Errorf("task_exec(%s): %w", virtAddr, err)
	}
	return out, nil
}

// TaskExec locates the connector claiming path as a Task (or Resource)
// and performs one task_exec iteration on it. Used by internal/auxtask's
// iteration driver between successive calls.
func TaskExec(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	path, connectorFilter string,
	arg, state []byte,
) (*protocol.TaskExecOutput, error) {
	prefix, virtAddr, ok := addressing.SplitPrefixAddr(cfg, path)
	if !ok {
		return nil, nil
	}
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
		if result != protocol.FilterTask && result != protocol.FilterResource {
			continue
		}

		return TaskExecConnector(ctx, conn, prefix, virtAddr, arg, state)
	}
	return nil, nil
}
