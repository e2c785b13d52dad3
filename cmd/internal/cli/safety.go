package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/safetylock"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var safetyReason string

var safetyReasonFlag = cmdline.Flag{
	ID: "safetyReasonFlag", Value: &safetyReason, DefaultValue: "",
	Name: "reason", Usage: "free-text reason recorded in the sentinel file",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(safetyCmd)
		cmdManager.RegisterSubCmd(safetyCmd, safetyLockCmd)
		cmdManager.RegisterSubCmd(safetyCmd, safetyUnlockCmd)
		cmdManager.RegisterFlagForCmd(&safetyReasonFlag, safetyLockCmd)
	})
}

var safetyCmd = &cobra.Command{
	Use:   "safety",
	Short: "Engage or release the safety-lock sentinel",
}

var safetyLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Create the safety-lock sentinel; mutating ops refuse while it exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := safetylock.Lock(repoRoot, safetyReason); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "safety lock engaged")
		return nil
	},
}

var safetyUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove the safety-lock sentinel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := safetylock.Unlock(repoRoot); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "safety lock released")
		return nil
	},
}
