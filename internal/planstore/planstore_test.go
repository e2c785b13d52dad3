package planstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openStore(t)

	in := &report.PlanReport{
		Prefix:       "infra",
		Shortname:    "aws",
		VirtAddr:     "vpc/main.ron",
		ConnectorOps: []protocol.PlanElement{{OpDefinition: "create", WritesOutputs: []string{"vpc_id"}}},
	}
	require.NoError(t, s.Put("infra", "aws", "vpc/main.ron", in))

	out, ok, err := s.Get("infra", "aws", "vpc/main.ron")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in.ConnectorOps, out.ConnectorOps)
	require.False(t, out.FullyApplied)
}

func TestGetMissingReport(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get("infra", "aws", "never-planned.ron")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFullyAppliedSurvivesRewrite(t *testing.T) {
	s := openStore(t)

	r := &report.PlanReport{Prefix: "infra", Shortname: "aws", VirtAddr: "vpc/main.ron"}
	require.NoError(t, s.Put("infra", "aws", "vpc/main.ron", r))

	r.FullyApplied = true
	require.NoError(t, s.Put("infra", "aws", "vpc/main.ron", r))

	out, ok, err := s.Get("infra", "aws", "vpc/main.ron")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, out.FullyApplied)
}

func TestKeysAreScopedPerConnector(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put("infra", "aws", "vpc/main.ron", &report.PlanReport{VirtAddr: "vpc/main.ron"}))

	_, ok, err := s.Get("infra", "snowflake", "vpc/main.ron")
	require.NoError(t, err)
	require.False(t, ok, "a different shortname must not observe another connector's plan")
}

func TestDeleteRemovesReport(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put("infra", "aws", "vpc/main.ron", &report.PlanReport{VirtAddr: "vpc/main.ron"}))
	require.NoError(t, s.Delete("infra", "aws", "vpc/main.ron"))

	_, ok, err := s.Get("infra", "aws", "vpc/main.ron")
	require.NoError(t, err)
	require.False(t, ok)
}
