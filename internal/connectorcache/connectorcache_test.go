package connectorcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/sandbox"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

type fakeConnector struct {
	initCalls int32
}

func (f *fakeConnector) Init(ctx context.Context) error {
	atomic.AddInt32(&f.initCalls, 1)
	return nil
}
func (f *fakeConnector) Version(ctx context.Context) (string, error) { return HostVersion, nil }
func (f *fakeConnector) Filter(ctx context.Context, addr string) (protocol.FilterResult, error) {
	return protocol.FilterResource, nil
}
func (f *fakeConnector) Subpaths(ctx context.Context) ([]string, error)             { return nil, nil }
func (f *fakeConnector) List(ctx context.Context, subpath string) ([]string, error) { return nil, nil }
func (f *fakeConnector) Get(ctx context.Context, addr string) (*protocol.GetResourceOutput, error) {
	return nil, nil
}
func (f *fakeConnector) Plan(ctx context.Context, addr string, current, desired []byte) ([]protocol.PlanElement, error) {
	return nil, nil
}
func (f *fakeConnector) OpExec(ctx context.Context, addr, op string) (*protocol.OpExecOutput, error) {
	return nil, nil
}
func (f *fakeConnector) AddrVirtToPhy(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
	return nil, nil
}
func (f *fakeConnector) AddrPhyToVirt(ctx context.Context, addr string) (*string, error) {
	return nil, nil
}
func (f *fakeConnector) GetSkeletons(ctx context.Context) ([]protocol.SkeletonOutput, error) {
	return nil, nil
}
func (f *fakeConnector) GetDocstring(ctx context.Context, addr string, ident protocol.DocIdent) (*protocol.GetDocOutput, error) {
	return nil, nil
}
func (f *fakeConnector) Eq(ctx context.Context, addr string, a, b []byte) (bool, error) {
	return false, nil
}
func (f *fakeConnector) Diag(ctx context.Context, addr string, body []byte) ([]protocol.Diagnostic, error) {
	return nil, nil
}
func (f *fakeConnector) Unbundle(ctx context.Context, addr string, body []byte) ([]protocol.UnbundleElement, error) {
	return nil, nil
}
func (f *fakeConnector) TaskExec(ctx context.Context, addr string, body, arg, state []byte) (*protocol.TaskExecOutput, error) {
	return nil, nil
}

var _ protocol.Connector = (*fakeConnector)(nil)

func fakeHandle(shortname string) *sandbox.Handle {
	// A pid nothing real ever has, so Handle.Close's kill() calls are
	// harmless no-ops (ESRCH) instead of touching a live process group.
	return sandbox.NewHandle(shortname, &fakeConnector{}, 1<<30, "/tmp/autoschematic-test-nonexistent.sock", "/tmp/autoschematic-test-nonexistent.dump")
}

func testConfig() *config.AutoschematicConfig {
	return &config.AutoschematicConfig{
		Prefixes: map[string]config.Prefix{
			"infra": {Path: "infra"},
		},
	}
}

func TestGetOrSpawnConnectorReusesCachedInstance(t *testing.T) {
	var spawnCount int32
	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		atomic.AddInt32(&spawnCount, 1)
		return fakeHandle(shortname), nil
	}
	c := New(spawn, nil)
	cfg := testConfig()
	def := config.Connector{Shortname: "aws"}

	c1, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, false)
	require.NoError(t, err)
	c2, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, false)
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.EqualValues(t, 1, spawnCount)
}

func TestGetOrSpawnConnectorConcurrentFirstSpawnSpawnsOnce(t *testing.T) {
	var spawnCount int32
	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		atomic.AddInt32(&spawnCount, 1)
		return fakeHandle(shortname), nil
	}
	c := New(spawn, nil)
	cfg := testConfig()
	def := config.Connector{Shortname: "aws"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, false)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, spawnCount, "per-key lock must serialize concurrent first spawns")
}

func TestInitInvalidatesFilterCache(t *testing.T) {
	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		return fakeHandle(shortname), nil
	}
	c := New(spawn, nil)
	cfg := testConfig()
	def := config.Connector{Shortname: "aws"}

	_, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, false)
	require.NoError(t, err)

	res, err := c.FilterCached(context.Background(), "aws", "infra", "vpc/main")
	require.NoError(t, err)
	require.Equal(t, protocol.FilterResource, res)

	ok, err := c.InitConnector(context.Background(), "aws", "infra")
	require.NoError(t, err)
	require.True(t, ok)

	c.mu.Lock()
	_, hit := c.filters[Key{Prefix: "infra", Shortname: "aws"}]["vpc/main"]
	c.mu.Unlock()
	require.False(t, hit, "init() must drop the cached filter result")
}

func TestGetOrSpawnConnectorDoesNotReinitAlreadyRunningHandle(t *testing.T) {
	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		return fakeHandle(shortname), nil
	}
	c := New(spawn, nil)
	cfg := testConfig()
	def := config.Connector{Shortname: "aws"}

	conn, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, true)
	require.NoError(t, err)
	fc := conn.(*fakeConnector)
	require.EqualValues(t, 1, fc.initCalls, "first doInit=true call must init the freshly spawned connector")

	_, err = c.FilterCached(context.Background(), "aws", "infra", "vpc/main")
	require.NoError(t, err)

	// Every per-resource call site passes doInit=true on an already-Running
	// connector; init() only fires when the init status is absent, so
	// repeat calls on a cached, Running handle must neither re-run Init()
	// nor wipe the filter cache it just populated.
	for i := 0; i < 3; i++ {
		conn2, err := c.GetOrSpawnConnector(context.Background(), cfg, "infra", def, true)
		require.NoError(t, err)
		require.Same(t, conn, conn2)
	}
	require.EqualValues(t, 1, fc.initCalls, "doInit=true on an already-Running cached handle must not re-init it")

	c.mu.Lock()
	_, hit := c.filters[Key{Prefix: "infra", Shortname: "aws"}]["vpc/main"]
	c.mu.Unlock()
	require.True(t, hit, "repeat doInit=true calls on a Running handle must not clear the filter cache")
}

func TestResolveEnvOrdering(t *testing.T) {
	prefixDef := config.Prefix{Env: map[string]string{"A": "prefix", "B": "prefix"}}
	connectorDef := config.Connector{Env: map[string]string{"B": "connector", "C": "connector"}}

	merged, err := resolveEnv(prefixDef, connectorDef)
	require.NoError(t, err)
	require.Equal(t, "prefix", merged["A"])
	require.Equal(t, "connector", merged["B"], "connector env must override prefix env")
	require.Equal(t, "connector", merged["C"])
}
