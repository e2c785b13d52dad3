package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/internal/sandbox"
	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// stubConnector implements protocol.Connector with just enough behavior
// to drive the plan/apply/import pipelines under test: it treats every
// address directly under "vpc/" as a present resource of its own, every
// address directly under "bundles/" as a bundle, and everything else as
// unclaimed.
type stubConnector struct {
	planOps     []protocol.PlanElement
	opExecOut   *protocol.OpExecOutput
	getOut      *protocol.GetResourceOutput
	unbundleOut []protocol.UnbundleElement
}

func (s *stubConnector) Init(ctx context.Context) error              { return nil }
func (s *stubConnector) Version(ctx context.Context) (string, error) { return "1.0.0", nil }
func (s *stubConnector) Filter(ctx context.Context, addr string) (protocol.FilterResult, error) {
	if filepath.Dir(addr) == "vpc" || filepath.Dir(addr) == "bundles" {
		if filepath.Dir(addr) == "bundles" {
			return protocol.FilterBundle, nil
		}
		return protocol.FilterResource, nil
	}
	return protocol.FilterNone, nil
}
func (s *stubConnector) Subpaths(ctx context.Context) ([]string, error) { return []string{"vpc"}, nil }
func (s *stubConnector) List(ctx context.Context, subpath string) ([]string, error) {
	return []string{"vpc/main"}, nil
}
func (s *stubConnector) Get(ctx context.Context, addr string) (*protocol.GetResourceOutput, error) {
	return s.getOut, nil
}
func (s *stubConnector) Plan(ctx context.Context, addr string, current, desired []byte) ([]protocol.PlanElement, error) {
	return s.planOps, nil
}
func (s *stubConnector) OpExec(ctx context.Context, addr, op string) (*protocol.OpExecOutput, error) {
	return s.opExecOut, nil
}
func (s *stubConnector) AddrVirtToPhy(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
	return &protocol.VirtToPhyOutput{Kind: protocol.VirtToPhyPresent, Path: addr}, nil
}
func (s *stubConnector) AddrPhyToVirt(ctx context.Context, addr string) (*string, error) {
	return nil, nil
}
func (s *stubConnector) GetSkeletons(ctx context.Context) ([]protocol.SkeletonOutput, error) {
	return nil, nil
}
func (s *stubConnector) GetDocstring(ctx context.Context, addr string, ident protocol.DocIdent) (*protocol.GetDocOutput, error) {
	return nil, nil
}
func (s *stubConnector) Eq(ctx context.Context, addr string, a, b []byte) (bool, error) {
	return false, nil
}
func (s *stubConnector) Diag(ctx context.Context, addr string, body []byte) ([]protocol.Diagnostic, error) {
	return nil, nil
}
func (s *stubConnector) Unbundle(ctx context.Context, addr string, body []byte) ([]protocol.UnbundleElement, error) {
	return s.unbundleOut, nil
}
func (s *stubConnector) TaskExec(ctx context.Context, addr string, body, arg, state []byte) (*protocol.TaskExecOutput, error) {
	return &protocol.TaskExecOutput{OutputState: state}, nil
}

var _ protocol.Connector = (*stubConnector)(nil)

func newTestCache(t *testing.T, conn protocol.Connector) *connectorcache.Cache {
	t.Helper()
	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		return sandbox.NewHandle(shortname, conn, 1<<30, "/tmp/autoschematic-test-nonexistent.sock", "/tmp/autoschematic-test-nonexistent.dump"), nil
	}
	return connectorcache.New(spawn, nil)
}

func testCfg(prefix string) *config.AutoschematicConfig {
	return &config.AutoschematicConfig{
		Prefixes: map[string]config.Prefix{
			prefix: {
				Path:       prefix,
				Connectors: []config.Connector{{Shortname: "aws"}},
			},
		},
	}
}

func TestPlanResolvesOpsForExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vpc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vpc/main"), []byte("cidr = 10.0.0.0/16"), 0o644))

	conn := &stubConnector{planOps: []protocol.PlanElement{{OpDefinition: "create"}}}
	cache := newTestCache(t, conn)
	cfg := testCfg(dir)

	r, err := Plan(context.Background(), cfg, cache, dir, "vpc/main", "")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.False(t, r.Deferred())
	require.Len(t, r.ConnectorOps, 1)
	require.Equal(t, "aws", r.Shortname)
}

func TestApplyConnectorMergesOutputDelta(t *testing.T) {
	dir := t.TempDir()
	val := "vpc-12345"
	conn := &stubConnector{
		planOps:   []protocol.PlanElement{{OpDefinition: "create"}},
		opExecOut: &protocol.OpExecOutput{Outputs: protocol.OutputMap{"id": &val}},
	}

	plan := &report.PlanReport{Prefix: dir, VirtAddr: "vpc/main", ConnectorOps: conn.planOps}
	apply, err := ApplyConnector(context.Background(), conn, plan)
	require.NoError(t, err)
	require.Len(t, apply.WroteFiles, 1)

	got, ok, err := outputmap.Get(dir, "vpc/main", "id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, val, got)
}

func TestUnbundleWritesChildFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bundles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundles/stack"), []byte("bundle"), 0o644))

	conn := &stubConnector{unbundleOut: []protocol.UnbundleElement{{Filename: "child.yaml", Contents: []byte("a: 1")}}}
	cache := newTestCache(t, conn)
	cfg := testCfg(dir)

	written, err := Unbundle(context.Background(), cfg, cache, filepath.Join(dir, "bundles/stack"), "", false)
	require.NoError(t, err)
	require.Len(t, written, 1)

	got, err := os.ReadFile(written[0])
	require.NoError(t, err)
	require.Equal(t, "a: 1", string(got))
}

func TestAddrMatchesFilterBidirectional(t *testing.T) {
	require.True(t, addrMatchesFilter("vpc/main", "vpc"))
	require.True(t, addrMatchesFilter("vpc", "vpc/main"))
	require.True(t, addrMatchesFilter("vpc/main", ""))
	require.False(t, addrMatchesFilter("vpc/main", "subnet"))
}
