package addressing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

type stubConnector struct {
	protocol.Connector
	virtToPhy func(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error)
	phyToVirt func(ctx context.Context, addr string) (*string, error)
}

func (s *stubConnector) AddrVirtToPhy(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
	return s.virtToPhy(ctx, addr)
}

func (s *stubConnector) AddrPhyToVirt(ctx context.Context, addr string) (*string, error) {
	return s.phyToVirt(ctx, addr)
}

func TestResolveVirtToPhyPresent(t *testing.T) {
	c := &stubConnector{virtToPhy: func(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
		return &protocol.VirtToPhyOutput{Kind: protocol.VirtToPhyPresent, Path: "aws/ec2/i-abc"}, nil
	}}
	res, err := ResolveVirtToPhy(context.Background(), c, "aws/ec2/my-box")
	require.NoError(t, err)
	require.Equal(t, protocol.VirtToPhyPresent, res.Kind)
	require.Equal(t, "aws/ec2/i-abc", res.EffectiveAddr("aws/ec2/my-box"))
}

func TestResolveVirtToPhyNotPresentFallsBackToVirtual(t *testing.T) {
	c := &stubConnector{virtToPhy: func(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
		return &protocol.VirtToPhyOutput{Kind: protocol.VirtToPhyNotPresent}, nil
	}}
	res, err := ResolveVirtToPhy(context.Background(), c, "aws/ec2/my-box")
	require.NoError(t, err)
	require.Equal(t, "aws/ec2/my-box", res.EffectiveAddr("aws/ec2/my-box"))
}

func TestResolveVirtToPhyDeferredCarriesReads(t *testing.T) {
	reads := []protocol.ReadOutput{{Addr: "vpc.ron", Key: "vpc_id"}}
	c := &stubConnector{virtToPhy: func(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
		return &protocol.VirtToPhyOutput{Kind: protocol.VirtToPhyDeferred, Reads: reads}, nil
	}}
	res, err := ResolveVirtToPhy(context.Background(), c, "subnet.ron")
	require.NoError(t, err)
	require.Equal(t, protocol.VirtToPhyDeferred, res.Kind)
	require.Equal(t, reads, res.Reads)
}

func TestResolvePhyToVirtDefaultsToIdentity(t *testing.T) {
	c := &stubConnector{phyToVirt: func(ctx context.Context, addr string) (*string, error) {
		return nil, nil
	}}
	v, err := ResolvePhyToVirt(context.Background(), c, "aws/ec2/i-abc")
	require.NoError(t, err)
	require.Equal(t, "aws/ec2/i-abc", v)
}

func TestResolvePhyToVirtReturnsExplicitMapping(t *testing.T) {
	virt := "aws/ec2/my-box"
	c := &stubConnector{phyToVirt: func(ctx context.Context, addr string) (*string, error) {
		return &virt, nil
	}}
	v, err := ResolvePhyToVirt(context.Background(), c, "aws/ec2/i-abc")
	require.NoError(t, err)
	require.Equal(t, virt, v)
}

func TestSplitPrefixAddrPicksLongestMatch(t *testing.T) {
	cfg := &config.AutoschematicConfig{Prefixes: map[string]config.Prefix{
		"aws":     {},
		"aws/ec2": {},
	}}

	prefix, addr, ok := SplitPrefixAddr(cfg, "aws/ec2/my-box")
	require.True(t, ok)
	require.Equal(t, "aws/ec2", prefix)
	require.Equal(t, "my-box", addr)
}

func TestSplitPrefixAddrNoMatch(t *testing.T) {
	cfg := &config.AutoschematicConfig{Prefixes: map[string]config.Prefix{"aws": {}}}

	_, _, ok := SplitPrefixAddr(cfg, "gcp/vm/my-box")
	require.False(t, ok)
}

func TestJoinUnderPrefixClampsEscapeAttempts(t *testing.T) {
	dir := t.TempDir()
	full, err := JoinUnderPrefix(dir, "../../etc/passwd")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(full, dir),
		"resolved path must stay scoped under the prefix, got %q", full)
}
