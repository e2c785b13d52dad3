package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/planstore"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// skipDirs are bookkeeping directories under a prefix that never hold
// resource files themselves.
var skipDirs = map[string]bool{
	".outputs": true,
	".secrets": true,
	".git":     true,
}

// Driver bundles the parsed config, connector cache, and (optionally) a
// plan store -- the one object cmd/internal/cli's subcommands and
// internal/auxtask's task runner both drive, so a single process reuses
// the same spawned connectors and persisted plans across calls.
type Driver struct {
	Cfg   *config.AutoschematicConfig
	Cache *connectorcache.Cache
	Plans *planstore.Store // nil: Plan does not persist reports and Apply returns an error
}

// NewDriver constructs a Driver. plans may be nil; callers that never
// call Apply or ApplyAll don't need a plan store open.
func NewDriver(cfg *config.AutoschematicConfig, cache *connectorcache.Cache, plans *planstore.Store) *Driver {
	return &Driver{Cfg: cfg, Cache: cache, Plans: plans}
}

// WorkingSetEntry is one repo-relative address discovered while walking
// a prefix's resource tree.
type WorkingSetEntry struct {
	Prefix string
	Addr   string
}

// WorkingSet lists every on-disk file under the configured prefixes
// (optionally restricted to one), skipping .outputs/.secrets/.git and
// any other dotfile/dotdir -- the set plan and pull-state iterate.
func (d *Driver) WorkingSet(prefixFilter string) ([]WorkingSetEntry, error) {
	var entries []WorkingSetEntry

	names := make([]string, 0, len(d.Cfg.Prefixes))
	for name := range d.Cfg.Prefixes {
		if prefixFilter != "" && name != prefixFilter {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, prefixName := range names {
		err := filepath.WalkDir(prefixName, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if filepath.Clean(path) == filepath.Clean(prefixName) {
					return nil // prefix directory doesn't exist yet
				}
				return err
			}
			base := d.Name()
			if d.IsDir() {
				if path != prefixName && (skipDirs[base] || strings.HasPrefix(base, ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(base, ".") {
				return nil
			}
			rel, err := filepath.Rel(prefixName, path)
			if err != nil {
				return err
			}
			entries = append(entries, WorkingSetEntry{Prefix: prefixName, Addr: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking prefix %s: %w", prefixName, err)
		}
	}
	return entries, nil
}

// Plan resolves which connector claims virtAddr and plans it, retrying
// through dependency chains until either a plan succeeds or the
// remaining deferral can make no further progress.
func (d *Driver) Plan(ctx context.Context, prefix, virtAddr, connectorFilter string) (*report.PlanReport, error) {
	r, err := PlanUntilResolved(ctx, d.Cfg, d.Cache, prefix, virtAddr, connectorFilter)
	if err != nil {
		return r, err
	}
	if r != nil && d.Plans != nil {
		if err := d.Plans.Put(prefix, r.Shortname, virtAddr, r); err != nil {
			return r, fmt.Errorf("persisting plan for %s/%s: %w", prefix, virtAddr, err)
		}
	}
	return r, nil
}

// PlanAll plans every resource in the working set, running each prefix's
// sequence of plans in its own goroutine (parallel across prefixes,
// sequential within one) and collecting every non-nil report --
// addresses no connector claims are silently omitted, exactly as Plan()
// itself returns (nil, nil) for them.
func (d *Driver) PlanAll(ctx context.Context, prefixFilter, connectorFilter string) ([]*report.PlanReport, error) {
	entries, err := d.WorkingSet(prefixFilter)
	if err != nil {
		return nil, err
	}

	byPrefix := map[string][]WorkingSetEntry{}
	var order []string
	for _, e := range entries {
		if _, ok := byPrefix[e.Prefix]; !ok {
			order = append(order, e.Prefix)
		}
		byPrefix[e.Prefix] = append(byPrefix[e.Prefix], e)
	}

	results := make([][]*report.PlanReport, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, prefixName := range order {
		i, prefixName := i, prefixName
		g.Go(func() error {
			var reports []*report.PlanReport
			for _, e := range byPrefix[prefixName] {
				r, err := d.Plan(gctx, e.Prefix, e.Addr, connectorFilter)
				if err != nil {
					return fmt.Errorf("planning %s/%s: %w", e.Prefix, e.Addr, err)
				}
				if r != nil {
					reports = append(reports, r)
				}
			}
			results[i] = reports
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*report.PlanReport
	for _, rs := range results {
		all = append(all, rs...)
	}
	return all, nil
}

// Apply loads the last persisted plan for (prefix, shortname, addr),
// refuses to re-run one already fully applied, applies it, and marks it
// fully applied on success.
func (d *Driver) Apply(ctx context.Context, prefix, shortname, virtAddr, connectorFilter string) (*report.ApplyReport, error) {
	if d.Plans == nil {
		return nil, fmt.Errorf("apply requires a plan store")
	}
	plan, ok, err := d.Plans.Get(prefix, shortname, virtAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no plan on record for %s/%s -- run plan first", prefix, virtAddr)
	}
	if plan.FullyApplied {
		return nil, fmt.Errorf("plan for %s/%s was already fully applied", prefix, virtAddr)
	}
	if plan.Deferred() {
		return nil, fmt.Errorf("plan for %s/%s is still deferred on %d output(s)", prefix, virtAddr, len(plan.MissingOutputs))
	}
	if plan.Empty() {
		plan.FullyApplied = true
		return &report.ApplyReport{Success: true}, d.Plans.Put(prefix, shortname, virtAddr, plan)
	}

	apply, applyErr := Apply(ctx, d.Cfg, d.Cache, connectorFilter, plan)
	if apply != nil && apply.Success {
		plan.FullyApplied = true
		if err := d.Plans.Put(prefix, shortname, virtAddr, plan); err != nil {
			return apply, fmt.Errorf("marking plan applied for %s/%s: %w", prefix, virtAddr, err)
		}
	}
	return apply, applyErr
}

// ApplyAll applies the persisted plan report of every resource in the
// working set that has one. Resources with no plan on record are skipped
// silently; a plan store read error or an Apply error (including a plan
// that is still deferred or already fully applied) is collected per
// resource rather than aborting the whole run: apply is per-resource
// best-effort with explicit failure reporting.
func (d *Driver) ApplyAll(ctx context.Context, prefixFilter, connectorFilter string) (map[string]*report.ApplyReport, map[string]error) {
	applied := map[string]*report.ApplyReport{}
	failed := map[string]error{}

	entries, err := d.WorkingSet(prefixFilter)
	if err != nil {
		failed["*"] = err
		return applied, failed
	}

	for _, e := range entries {
		prefixDef, ok := d.Cfg.Prefixes[e.Prefix]
		if !ok {
			continue
		}
		for _, connectorDef := range prefixDef.Connectors {
			if connectorFilter != "" && connectorDef.Shortname != connectorFilter {
				continue
			}
			key := e.Prefix + "/" + connectorDef.Shortname + "/" + e.Addr
			_, ok, err := d.Plans.Get(e.Prefix, connectorDef.Shortname, e.Addr)
			if err != nil {
				failed[key] = err
				continue
			}
			if !ok {
				continue
			}
			apply, err := d.Apply(ctx, e.Prefix, connectorDef.Shortname, e.Addr, connectorDef.Shortname)
			if err != nil {
				failed[key] = err
				continue
			}
			applied[key] = apply
		}
	}
	return applied, failed
}

// Import discovers and materializes remote resources via ImportAll.
func (d *Driver) Import(ctx context.Context, subpath, prefixFilter, connectorFilter string, overwrite bool, events chan<- ImportEvent) error {
	return ImportAll(ctx, d.Cfg, d.Cache, subpath, prefixFilter, connectorFilter, overwrite, events)
}

// Unbundle expands the bundle resource at path into its child resource
// files, overwriting existing children only when overbundle is set.
func (d *Driver) Unbundle(ctx context.Context, path, connectorFilter string, overbundle bool) ([]string, error) {
	return Unbundle(ctx, d.Cfg, d.Cache, path, connectorFilter, overbundle)
}

// TaskExec performs one task_exec iteration against the resource at
// path -- the single call internal/auxtask.Runner loops between.
func (d *Driver) TaskExec(ctx context.Context, path, connectorFilter string, arg, state []byte) (*protocol.TaskExecOutput, error) {
	return TaskExec(ctx, d.Cfg, d.Cache, path, connectorFilter, arg, state)
}

// PullState refreshes one resource from remote state.
func (d *Driver) PullState(ctx context.Context, prefix, virtAddr, connectorFilter string, deleteMissing bool) (*report.PullReport, error) {
	return PullState(ctx, d.Cfg, d.Cache, prefix, virtAddr, connectorFilter, deleteMissing)
}

// PullStateAll refreshes every resource in the working set from remote
// state, parallel across prefixes.
func (d *Driver) PullStateAll(ctx context.Context, prefixFilter, connectorFilter string, deleteMissing bool) ([]*report.PullReport, error) {
	entries, err := d.WorkingSet(prefixFilter)
	if err != nil {
		return nil, err
	}

	byPrefix := map[string][]WorkingSetEntry{}
	var order []string
	for _, e := range entries {
		if _, ok := byPrefix[e.Prefix]; !ok {
			order = append(order, e.Prefix)
		}
		byPrefix[e.Prefix] = append(byPrefix[e.Prefix], e)
	}

	results := make([][]*report.PullReport, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, prefixName := range order {
		i, prefixName := i, prefixName
		g.Go(func() error {
			var reports []*report.PullReport
			for _, e := range byPrefix[prefixName] {
				r, err := d.PullState(gctx, e.Prefix, e.Addr, connectorFilter, deleteMissing)
				if err != nil {
					return fmt.Errorf("pulling %s/%s: %w", e.Prefix, e.Addr, err)
				}
				if r != nil {
					reports = append(reports, r)
				}
			}
			results[i] = reports
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*report.PullReport
	for _, rs := range results {
		all = append(all, rs...)
	}
	return all, nil
}
