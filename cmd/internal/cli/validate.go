package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(validateCmd)
	})
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and structurally validate autoschematic.ron",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s is valid: %d prefix(es)\n", configFile, len(cfg.Prefixes))
		return nil
	},
}
