package workflow

import (
	"context"
	"fmt"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// ApplyConnector executes every op in plan's ConnectorOps, in order,
// against conn, merging each op's reported output deltas into the
// on-disk output map and following the virt/phy link convention for
// addresses where they differ.
func ApplyConnector(ctx context.Context, conn protocol.Connector, plan *report.PlanReport) (*report.ApplyReport, error) {
	if plan.Deferred() {
		return nil, fmt.Errorf("apply run on plan with deferred outputs for %s", plan.VirtAddr)
	}

	apply := &report.ApplyReport{}

	fail := func(err error) (*report.ApplyReport, error) {
		apply.Success = false
		apply.Err = err.Error()
		return apply, err
	}

	for _, op := range plan.ConnectorOps {
		resolution, err := addressing.ResolveVirtToPhy(ctx, conn, plan.VirtAddr)
		if err != nil {
			return fail(err)
		}
		if resolution.Kind == protocol.VirtToPhyDeferred {
			return fail(fmt.Errorf("apply run on plan with deferred outputs for %s", plan.VirtAddr))
		}
		effectiveAddr := resolution.EffectiveAddr(plan.VirtAddr)

		out, err := conn.OpExec(ctx, effectiveAddr, op.OpDefinition)
		if err != nil {
			// op_exec may itself have produced real outputs before
			// failing; the connector has no way to report them here, so
			// we stop this resource's remaining ops but keep whatever
			// this ApplyReport accumulated so far.
			return fail(fmt.Errorf("op_exec(%s): %w", effectiveAddr, err))
		}

		if len(out.Outputs) > 0 {
			writtenPath, err := outputmap.ApplyDelta(plan.Prefix, plan.VirtAddr, out.Outputs)
			if err != nil {
				return fail(fmt.Errorf("applying output delta for %s: %w", plan.VirtAddr, err))
			}

			// Re-resolve: the op may itself have changed what phy_addr the
			// virtual address maps to (e.g. a create op assigning an id).
			resolution, err = addressing.ResolveVirtToPhy(ctx, conn, plan.VirtAddr)
			if err != nil {
				return fail(err)
			}

			if writtenPath != "" {
				if resolution.Kind == protocol.VirtToPhyPresent && resolution.Phy != plan.VirtAddr {
					linkPath, err := outputmap.WriteLink(plan.Prefix, resolution.Phy, plan.VirtAddr)
					if err != nil {
						return fail(err)
					}
					apply.WroteFiles = append(apply.WroteFiles, linkPath)
				}
				apply.WroteFiles = append(apply.WroteFiles, writtenPath)
			} else if resolution.Kind == protocol.VirtToPhyPresent {
				if deletedPath, err := outputmap.Delete(plan.Prefix, plan.VirtAddr); err != nil {
					return fail(err)
				} else if deletedPath != "" {
					apply.WroteFiles = append(apply.WroteFiles, deletedPath)
				}
				if resolution.Phy != plan.VirtAddr {
					if deletedPath, err := outputmap.Delete(plan.Prefix, resolution.Phy); err != nil {
						return fail(err)
					} else if deletedPath != "" {
						apply.WroteFiles = append(apply.WroteFiles, deletedPath)
					}
				}
			}
		}

		apply.Outputs = append(apply.Outputs, out)
	}

	apply.Success = true
	return apply, nil
}

// Apply locates the connector claiming plan.VirtAddr within plan.Prefix
// and applies the plan against it. connectorFilter, if non-empty,
// restricts the search to one connector shortname.
func Apply(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	connectorFilter string,
	plan *report.PlanReport,
) (*report.ApplyReport, error) {
	prefixDef, ok := cfg.Prefixes[plan.Prefix]
	if !ok {
		return nil, nil
	}

	for _, connectorDef := range prefixDef.Connectors {
		if connectorFilter != "" && connectorDef.Shortname != connectorFilter {
			continue
		}

		conn, err := cache.GetOrSpawnConnector(ctx, cfg, plan.Prefix, connectorDef, true)
		if err != nil {
			return nil, fmt.Errorf("spawning %s: %w", connectorDef.Shortname, err)
		}

		result, err := cache.FilterCached(ctx, connectorDef.Shortname, plan.Prefix, plan.VirtAddr)
		if err != nil {
			return nil, fmt.Errorf("filter(%s): %w", plan.VirtAddr, err)
		}
		if result != protocol.FilterResource {
			continue
		}

		return ApplyConnector(ctx, conn, plan)
	}
	return nil, nil
}
