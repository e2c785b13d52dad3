package workflow

import (
	"context"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

func deferredKeySet(r *report.PlanReport) map[protocol.ReadOutput]struct{} {
	set := make(map[protocol.ReadOutput]struct{}, len(r.MissingOutputs))
	for _, ro := range r.MissingOutputs {
		set[ro] = struct{}{}
	}
	return set
}

func sameKeySet(a, b map[protocol.ReadOutput]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// PlanUntilResolved re-plans a resource across successive passes as long
// as each pass applies at least one of the dependencies it is waiting
// on, applying each successful (non-deferred) dependency plan along the
// way. This is how a chain of out://addr[key] references across
// resources eventually resolves once their upstream resources are
// applied.
//
// If a pass applies no dependency, the deferred report is returned with
// a nil error. If a pass did apply dependencies but the next pass
// reports the same non-empty deferred set, the chain cannot make
// progress and PlanUntilResolved returns errtypes.ErrOutputCycle.
func PlanUntilResolved(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	cache *connectorcache.Cache,
	prefix, virtAddr, connectorFilter string,
) (*report.PlanReport, error) {
	var lastDeferred map[protocol.ReadOutput]struct{}

	for {
		r, err := Plan(ctx, cfg, cache, prefix, virtAddr, connectorFilter)
		if err != nil {
			return nil, err
		}
		if r == nil || !r.Deferred() {
			return r, nil
		}

		current := deferredKeySet(r)
		if lastDeferred != nil && len(current) > 0 && sameKeySet(current, lastDeferred) {
			return r, errtypes.ErrOutputCycle
		}
		lastDeferred = current

		// Attempt to unblock the deferral by planning+applying each
		// address this resource is waiting on, then retry.
		progressed := false
		for ro := range current {
			depPrefix, depAddr, ok := addressing.SplitPrefixAddr(cfg, ro.Addr)
			if !ok {
				continue
			}
			depPlan, err := Plan(ctx, cfg, cache, depPrefix, depAddr, "")
			if err != nil || depPlan == nil || depPlan.Deferred() {
				continue
			}
			if len(depPlan.ConnectorOps) == 0 {
				continue
			}
			if _, err := Apply(ctx, cfg, cache, "", depPlan); err == nil {
				progressed = true
			}
		}
		if !progressed {
			return r, nil
		}
	}
}
