package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/reposync"
	"github.com/autoschematic-sh/autoschematic/internal/safetylock"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	applyPrefix      string
	applyConnector   string
	applySubpath     string
	applySkipConfirm bool
	applySkipCommit  bool
)

var applyPrefixFlag = cmdline.Flag{
	ID: "applyPrefixFlag", Value: &applyPrefix, DefaultValue: "",
	Name: "prefix", ShortHand: "p", Usage: "restrict applying to one configured prefix",
}

var applyConnectorFlag = cmdline.Flag{
	ID: "applyConnectorFlag", Value: &applyConnector, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict applying to one connector shortname",
}

var applySubpathFlag = cmdline.Flag{
	ID: "applySubpathFlag", Value: &applySubpath, DefaultValue: "",
	Name: "subpath", ShortHand: "s", Usage: "apply the last plan for a single virtual address",
}

var applySkipConfirmFlag = cmdline.Flag{
	ID: "applySkipConfirmFlag", Value: &applySkipConfirm, DefaultValue: false,
	Name: "skip-confirm", Usage: "do not prompt for confirmation before applying",
}

var applySkipCommitFlag = cmdline.Flag{
	ID: "applySkipCommitFlag", Value: &applySkipCommit, DefaultValue: false,
	Name: "skip-commit", Usage: "do not stage changed files with git add after applying",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(applyCmd)
		cmdManager.RegisterFlagForCmd(&applyPrefixFlag, applyCmd)
		cmdManager.RegisterFlagForCmd(&applyConnectorFlag, applyCmd)
		cmdManager.RegisterFlagForCmd(&applySubpathFlag, applyCmd)
		cmdManager.RegisterFlagForCmd(&applySkipConfirmFlag, applyCmd)
		cmdManager.RegisterFlagForCmd(&applySkipCommitFlag, applyCmd)
	})
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the last plan recorded for the working set (or one resource)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := safetylock.Check(repoRoot); err != nil {
			return err
		}

		lock, err := reposync.WaitForFlock(cmd.Context(), repoRoot)
		if err != nil {
			return err
		}
		defer lock.Release()

		if !applySkipConfirm && !confirm("apply the recorded plan(s)?") {
			fmt.Fprintln(os.Stderr, "aborted")
			return nil
		}

		drv, closeStore, err := newDriver()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var wrote []string

		if applySubpath != "" {
			if applyPrefix == "" || applyConnector == "" {
				return cmdline.FlagError("--prefix and --connector are required when --subpath is set")
			}
			r, err := drv.Apply(ctx, applyPrefix, applyConnector, applySubpath, applyConnector)
			if err != nil {
				return err
			}
			if r != nil {
				wrote = append(wrote, r.WroteFiles...)
			}
			if !applySkipCommit {
				for _, f := range wrote {
					if err := reposync.StageFile(ctx, repoRoot, f); err != nil {
						return err
					}
				}
			}
			return enc.Encode(r)
		}

		applied, failed := drv.ApplyAll(ctx, applyPrefix, applyConnector)
		for _, r := range applied {
			wrote = append(wrote, r.WroteFiles...)
		}
		if !applySkipCommit {
			for _, f := range wrote {
				if err := reposync.StageFile(ctx, repoRoot, f); err != nil {
					return err
				}
			}
		}
		fmt.Fprintf(os.Stderr, "applied %d resource(s), %d failed\n", len(applied), len(failed))
		for key, err := range failed {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, err)
		}
		return enc.Encode(applied)
	},
}
