package outputmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

func strp(s string) *string { return &s }

func TestApplyDeltaInsertsAndPreserves(t *testing.T) {
	dir := t.TempDir()

	path, err := ApplyDelta(dir, "aws/ec2/my-box", protocol.OutputMap{
		"instance_id": strp("i-abc"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, path)

	v, ok, err := Get(dir, "aws/ec2/my-box", "instance_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "i-abc", v)

	// A delta touching an unrelated key preserves the existing one.
	_, err = ApplyDelta(dir, "aws/ec2/my-box", protocol.OutputMap{
		"arn": strp("arn:aws:ec2:i-abc"),
	})
	require.NoError(t, err)

	m, err := Read(dir, "aws/ec2/my-box")
	require.NoError(t, err)
	require.Equal(t, protocol.OutputMapFile{
		"instance_id": "i-abc",
		"arn":         "arn:aws:ec2:i-abc",
	}, m)
}

func TestApplyDeltaRemovesKeyAndDeletesWhenEmpty(t *testing.T) {
	dir := t.TempDir()

	_, err := ApplyDelta(dir, "vpc", protocol.OutputMap{"vpc_id": strp("vpc-1")})
	require.NoError(t, err)

	exists, err := Exists(dir, "vpc")
	require.NoError(t, err)
	require.True(t, exists)

	// Removing the only key deletes the output file entirely.
	path, err := ApplyDelta(dir, "vpc", protocol.OutputMap{"vpc_id": nil})
	require.NoError(t, err)
	require.NotEmpty(t, path)

	exists, err = Exists(dir, "vpc")
	require.NoError(t, err)
	require.False(t, exists)

	m, err := Read(dir, "vpc")
	require.NoError(t, err)
	require.Empty(t, m)
}

func TestLinkLifecycle(t *testing.T) {
	dir := t.TempDir()
	virt, phy := "aws/ec2/my-box", "aws/ec2/i-abc"

	_, err := ApplyDelta(dir, virt, protocol.OutputMap{"instance_id": strp("i-abc")})
	require.NoError(t, err)

	linkPath, err := WriteLink(dir, phy, virt)
	require.NoError(t, err)
	require.NotEmpty(t, linkPath)

	// Reading through the physical address follows the link once.
	m, err := Read(dir, phy)
	require.NoError(t, err)
	require.Equal(t, protocol.OutputMapFile{"instance_id": "i-abc"}, m)

	// Deleting the virtual map leaves the link dangling; readers must not
	// resolve it to stale values.
	_, err = Delete(dir, virt)
	require.NoError(t, err)

	m, err = Read(dir, phy)
	require.NoError(t, err)
	require.Empty(t, m)
}

func TestReadMissingReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	m, err := Read(dir, "never/written")
	require.NoError(t, err)
	require.Empty(t, m)

	_, ok, err := Get(dir, "never/written", "k")
	require.NoError(t, err)
	require.False(t, ok)
}
