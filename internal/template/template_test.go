package template

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

func strp(s string) *string { return &s }

func TestGetReadOutputsFindsAllReferences(t *testing.T) {
	body := `vpc_id: out://vpc.ron[vpc_id]
subnet_cidr: out://vpc.ron[cidr]`

	refs := GetReadOutputs(body)
	require.ElementsMatch(t, []protocol.ReadOutput{
		{Addr: "vpc.ron", Key: "vpc_id"},
		{Addr: "vpc.ron", Key: "cidr"},
	}, refs)
}

func TestExpandSubstitutesKnownValues(t *testing.T) {
	dir := t.TempDir()
	_, err := outputmap.ApplyDelta(dir, "vpc.ron", protocol.OutputMap{"vpc_id": strp("vpc-1")})
	require.NoError(t, err)

	res, err := Expand(dir, `vpc_id: out://vpc.ron[vpc_id]`)
	require.NoError(t, err)
	require.Equal(t, `vpc_id: vpc-1`, res.Body)
	require.Empty(t, res.Missing)
	require.Equal(t, "vpc-1", res.Found[protocol.ReadOutput{Addr: "vpc.ron", Key: "vpc_id"}])
}

func TestExpandLeavesMissingReferencesVerbatim(t *testing.T) {
	dir := t.TempDir()

	body := `vpc_id: out://vpc.ron[vpc_id]`
	res, err := Expand(dir, body)
	require.NoError(t, err)
	require.Equal(t, body, res.Body)
	require.Contains(t, res.Missing, protocol.ReadOutput{Addr: "vpc.ron", Key: "vpc_id"})
	require.Empty(t, res.Found)
}

func TestExpandIsOnePass(t *testing.T) {
	dir := t.TempDir()
	// The substituted value itself looks like a reference; it must not be
	// expanded again.
	_, err := outputmap.ApplyDelta(dir, "a", protocol.OutputMap{"k": strp("out://b[k2]")})
	require.NoError(t, err)
	_, err = outputmap.ApplyDelta(dir, "b", protocol.OutputMap{"k2": strp("final")})
	require.NoError(t, err)

	res, err := Expand(dir, `x: out://a[k]`)
	require.NoError(t, err)
	require.Equal(t, `x: out://b[k2]`, res.Body)
}

func TestReverseExpandRestoresReferences(t *testing.T) {
	dir := t.TempDir()
	_, err := outputmap.ApplyDelta(dir, "vpc.ron", protocol.OutputMap{"vpc_id": strp("vpc-01234567")})
	require.NoError(t, err)

	templated := `vpc_id: out://vpc.ron[vpc_id]`
	raw := `vpc_id: vpc-01234567`

	out, err := ReverseExpand(dir, templated, raw, 3)
	require.NoError(t, err)
	require.Equal(t, `vpc_id: out://vpc.ron[vpc_id]`, out)
}

func TestReverseExpandRespectsMinLength(t *testing.T) {
	dir := t.TempDir()
	_, err := outputmap.ApplyDelta(dir, "a", protocol.OutputMap{"k": strp("ab")})
	require.NoError(t, err)

	templated := `x: out://a[k]`
	raw := `x: ab`

	// "ab" is shorter than minLength, so it is left as a literal.
	out, err := ReverseExpand(dir, templated, raw, 5)
	require.NoError(t, err)
	require.Equal(t, raw, out)
}
