package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/reposync"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	pullPrefix    string
	pullConnector string
	pullSubpath   string
	pullDelete    bool
)

var pullPrefixFlag = cmdline.Flag{
	ID: "pullPrefixFlag", Value: &pullPrefix, DefaultValue: "",
	Name: "prefix", ShortHand: "p", Usage: "restrict pulling to one configured prefix",
}

var pullConnectorFlag = cmdline.Flag{
	ID: "pullConnectorFlag", Value: &pullConnector, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict pulling to one connector shortname",
}

var pullSubpathFlag = cmdline.Flag{
	ID: "pullSubpathFlag", Value: &pullSubpath, DefaultValue: "",
	Name: "subpath", ShortHand: "s", Usage: "pull a single virtual address rather than the whole working set",
}

var pullDeleteFlag = cmdline.Flag{
	ID: "pullDeleteFlag", Value: &pullDelete, DefaultValue: false,
	Name: "delete", Usage: "delete local files whose remote resource no longer exists",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(pullCmd)
		cmdManager.RegisterFlagForCmd(&pullPrefixFlag, pullCmd)
		cmdManager.RegisterFlagForCmd(&pullConnectorFlag, pullCmd)
		cmdManager.RegisterFlagForCmd(&pullSubpathFlag, pullCmd)
		cmdManager.RegisterFlagForCmd(&pullDeleteFlag, pullCmd)
	})
}

var pullCmd = &cobra.Command{
	Use:   "pull-state",
	Short: "Refresh on-disk resource files and output maps from remote state",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		stage := func(files []string) error {
			for _, f := range files {
				if err := reposync.StageFile(ctx, repoRoot, f); err != nil {
					return err
				}
			}
			return nil
		}

		if pullSubpath != "" {
			if pullPrefix == "" {
				return cmdline.FlagError("--prefix is required when --subpath is set")
			}
			r, err := drv.PullState(ctx, pullPrefix, pullSubpath, pullConnector, pullDelete)
			if err != nil {
				return err
			}
			if r == nil {
				fmt.Fprintf(os.Stderr, "no connector claims %s/%s\n", pullPrefix, pullSubpath)
				return nil
			}
			if err := stage(r.WroteFiles); err != nil {
				return err
			}
			return enc.Encode(r)
		}

		reports, err := drv.PullStateAll(ctx, pullPrefix, pullConnector, pullDelete)
		if err != nil {
			return err
		}
		updated := 0
		for _, r := range reports {
			if r.Updated || r.Deleted {
				updated++
			}
			if err := stage(r.WroteFiles); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "pulled %d resource(s), %d changed\n", len(reports), updated)
		return enc.Encode(reports)
	},
}
