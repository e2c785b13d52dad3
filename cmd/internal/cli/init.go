package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

const scaffoldConfig = `{
  "prefixes": {
    "example": {
      "path": "example",
      "connectors": [
        {
          "shortname": "example",
          "spec": {
            "kind": "binary",
            "path": "/path/to/connector",
            "transport": "tarpc"
          }
        }
      ]
    }
  }
}
`

const scaffoldRBAC = `{
  "rules": []
}
`

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(initCmd)
	})
}

var initCmd = &cobra.Command{
	Use:   "init [config|rbac]",
	Short: "Scaffold autoschematic.ron or autoschematic.rbac.ron",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "config"
		if len(args) == 1 {
			target = args[0]
		}

		var path, body string
		switch target {
		case "config":
			path, body = configFile, scaffoldConfig
		case "rbac":
			path, body = "autoschematic.rbac.ron", scaffoldRBAC
		default:
			return cmdline.FlagError(fmt.Sprintf("unknown init target %q (want config or rbac)", target))
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		return nil
	},
}
