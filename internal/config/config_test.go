package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/pkg/test/tool/tmpl"
)

func TestLoadAndValidate(t *testing.T) {
	tmpDir := t.TempDir()
	values := struct {
		PrefixName string
		Shortname  string
		BinaryPath string
	}{
		PrefixName: "infra",
		Shortname:  "aws",
		BinaryPath: "/usr/local/bin/autoschematic-aws",
	}

	rendered := tmpl.Execute(t, tmpDir, "autoschematic-*.ron", "testdata/autoschematic.ron.tmpl", values)

	cfg, err := Load(rendered)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Contains(t, cfg.Prefixes, "infra")
	require.Equal(t, "aws", cfg.Prefixes["infra"].Connectors[0].Shortname)
}

func TestValidateRejectsDuplicateShortname(t *testing.T) {
	cfg := &AutoschematicConfig{
		Prefixes: map[string]Prefix{
			"infra": {
				Path: "infra",
				Connectors: []Connector{
					{Shortname: "aws", Spec: Spec{Kind: SpecBinary, Path: "/bin/a", Transport: TransportTarpc}},
					{Shortname: "aws", Spec: Spec{Kind: SpecBinary, Path: "/bin/b", Transport: TransportTarpc}},
				},
			},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate connector shortname")
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := &AutoschematicConfig{
		Prefixes: map[string]Prefix{
			"infra": {
				Path: "infra",
				Connectors: []Connector{
					{Shortname: "aws", Spec: Spec{Kind: SpecBinary, Path: "/bin/a", Transport: "carrier-pigeon"}},
				},
			},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestResourceGroupMap(t *testing.T) {
	cfg := &AutoschematicConfig{
		Prefixes: map[string]Prefix{
			"aws-east":  {Path: "aws-east", ResourceGroup: "aws"},
			"aws-west":  {Path: "aws-west", ResourceGroup: "aws"},
			"snowflake": {Path: "snowflake"},
		},
	}
	groups := cfg.ResourceGroupMap()
	require.ElementsMatch(t, []string{"aws-east", "aws-west"}, groups["aws"])
	require.NotContains(t, groups, "")
}
