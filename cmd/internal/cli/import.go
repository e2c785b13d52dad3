package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/reposync"
	"github.com/autoschematic-sh/autoschematic/internal/safetylock"
	"github.com/autoschematic-sh/autoschematic/internal/workflow"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	importPrefix    string
	importConnector string
	importSubpath   string
	importOverwrite bool
)

var importPrefixFlag = cmdline.Flag{
	ID: "importPrefixFlag", Value: &importPrefix, DefaultValue: "",
	Name: "prefix", ShortHand: "p", Usage: "restrict importing to one configured prefix",
}

var importConnectorFlag = cmdline.Flag{
	ID: "importConnectorFlag", Value: &importConnector, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict importing to one connector shortname",
}

var importSubpathFlag = cmdline.Flag{
	ID: "importSubpathFlag", Value: &importSubpath, DefaultValue: "",
	Name: "subpath", ShortHand: "s", Usage: "only import resources under this subpath",
}

var importOverwriteFlag = cmdline.Flag{
	ID: "importOverwriteFlag", Value: &importOverwrite, DefaultValue: false,
	Name: "overwrite", Usage: "overwrite files that already exist on disk",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(importCmd)
		cmdManager.RegisterFlagForCmd(&importPrefixFlag, importCmd)
		cmdManager.RegisterFlagForCmd(&importConnectorFlag, importCmd)
		cmdManager.RegisterFlagForCmd(&importSubpathFlag, importCmd)
		cmdManager.RegisterFlagForCmd(&importOverwriteFlag, importCmd)
	})
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Materialize remote resources as files under the repository",
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

		events := make(chan workflow.ImportEvent, 16)
		done := make(chan error, 1)
		ctx := cmd.Context()

		go func() {
			done <- drv.Import(ctx, importSubpath, importPrefix, importConnector, importOverwrite, events)
			close(events)
		}()

		var written []string
		for ev := range events {
			switch ev.Kind {
			case "wrote_file":
				written = append(written, ev.Path)
				fmt.Fprintf(os.Stderr, "wrote %s\n", ev.Path)
			case "skip_existing":
				fmt.Fprintf(os.Stderr, "skip (exists) %s/%s\n", ev.Prefix, ev.Addr)
			case "not_found":
				fmt.Fprintf(os.Stderr, "not found %s/%s\n", ev.Prefix, ev.Addr)
			}
		}

		if err := <-done; err != nil {
			return err
		}
		for _, f := range written {
			if err := reposync.StageFile(ctx, repoRoot, f); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "imported %d file(s)\n", len(written))
		return nil
	},
}
