package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/reposync"
	"github.com/autoschematic-sh/autoschematic/internal/safetylock"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	unbundleConnector  string
	unbundleNoStage    bool
	unbundleOverbundle bool
)

var unbundleConnectorFlag = cmdline.Flag{
	ID: "unbundleConnectorFlag", Value: &unbundleConnector, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict unbundling to one connector shortname",
}

var unbundleNoStageFlag = cmdline.Flag{
	ID: "unbundleNoStageFlag", Value: &unbundleNoStage, DefaultValue: false,
	Name: "no-stage", Usage: "do not stage the newly written files with git add",
}

var unbundleOverbundleFlag = cmdline.Flag{
	ID: "unbundleOverbundleFlag", Value: &unbundleOverbundle, DefaultValue: false,
	Name: "overbundle", Usage: "overwrite child files that already exist on disk",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(unbundleCmd)
		cmdManager.RegisterFlagForCmd(&unbundleConnectorFlag, unbundleCmd)
		cmdManager.RegisterFlagForCmd(&unbundleNoStageFlag, unbundleCmd)
		cmdManager.RegisterFlagForCmd(&unbundleOverbundleFlag, unbundleCmd)
	})
}

var unbundleCmd = &cobra.Command{
	Use:   "unbundle <path>",
	Short: "Expand a bundle resource file into its child resource files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := safetylock.Check(repoRoot); err != nil {
			return err
		}
		lock, err := reposync.WaitForFlock(cmd.Context(), repoRoot)
		if err != nil {
			return err
		}
		defer lock.Release()

		drv, closeStore, err := newDriver()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		written, err := drv.Unbundle(ctx, args[0], unbundleConnector, unbundleOverbundle)
		if err != nil {
			return err
		}

		if !unbundleNoStage {
			for _, f := range written {
				if err := reposync.StageFile(ctx, repoRoot, f); err != nil {
					return err
				}
			}
		}

		for _, f := range written {
			fmt.Fprintf(os.Stderr, "wrote %s\n", f)
		}
		fmt.Fprintf(os.Stderr, "unbundled into %d file(s)\n", len(written))
		return nil
	},
}
