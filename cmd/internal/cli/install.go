package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/binarycache"
	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var installCacheFolder string

var installCacheFolderFlag = cmdline.Flag{
	ID: "installCacheFolderFlag", Value: &installCacheFolder, DefaultValue: "",
	Name: "cache-folder", Usage: "directory under which connector releases are extracted (default: <repo-root>/.autoschematic/connectors)",
	EnvKeys: []string{"CONNECTOR_CACHE"},
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(installCmd)
		cmdManager.RegisterFlagForCmd(&installCacheFolderFlag, installCmd)
	})
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Fetch and extract every cargo-style connector release named in the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		folder := installCacheFolder
		if folder == "" {
			folder = filepath.Join(repoRoot, ".autoschematic", "connectors")
		}
		cache, err := binarycache.New(folder, nil)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		installed := 0
		for prefixName, p := range cfg.Prefixes {
			for _, conn := range p.Connectors {
				if conn.Spec.Kind != config.SpecCargo {
					continue
				}
				ownerRepo := strings.SplitN(conn.Spec.Package, "/", 2)
				if len(ownerRepo) != 2 {
					return fmt.Errorf("prefix %q, connector %q: package %q must be \"owner/repo\"", prefixName, conn.Shortname, conn.Spec.Package)
				}
				manifest := binarycache.ConnectorManifest{
					Type:           archManifestType(conn.Spec.Transport),
					ExecutableName: conn.Shortname,
				}
				dir, err := cache.FetchConnectorRelease(ctx, ownerRepo[0], ownerRepo[1], conn.Spec.Version, manifest, runtime.GOARCH)
				if err != nil {
					return fmt.Errorf("installing %s/%s: %w", prefixName, conn.Shortname, err)
				}
				fmt.Fprintf(os.Stderr, "installed %s/%s -> %s\n", prefixName, conn.Shortname, dir)
				installed++
			}
		}
		fmt.Fprintf(os.Stderr, "installed %d connector release(s)\n", installed)
		return nil
	},
}

func archManifestType(t config.TransportKind) string {
	if t == config.TransportGRPC {
		return "binary-grpc"
	}
	return "binary-tarpc"
}
