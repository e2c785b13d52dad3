package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/auxtask"
	"github.com/autoschematic-sh/autoschematic/internal/safetylock"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	runTaskID       string
	runTaskPath     string
	runTaskConn     string
	runTaskArg      string
	runTaskCgroup   string
	runTaskInterval time.Duration
)

var runTaskNameFlag = cmdline.Flag{
	ID: "runTaskNameFlag", Value: &runTaskID, DefaultValue: "",
	Name: "name", ShortHand: "n", Usage: "unique id for this task invocation",
	Required: true,
}

var runTaskPathFlag = cmdline.Flag{
	ID: "runTaskPathFlag", Value: &runTaskPath, DefaultValue: "",
	Name: "path", ShortHand: "p", Usage: "repo-relative resource address the task runs against",
	Required: true,
}

var runTaskConnFlag = cmdline.Flag{
	ID: "runTaskConnFlag", Value: &runTaskConn, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict to one connector shortname",
}

var runTaskArgFlag = cmdline.Flag{
	ID: "runTaskArgFlag", Value: &runTaskArg, DefaultValue: "",
	Name: "arg", Usage: "task argument payload, passed to the connector verbatim",
}

var runTaskCgroupFlag = cmdline.Flag{
	ID: "runTaskCgroupFlag", Value: &runTaskCgroup, DefaultValue: "",
	Name: "cgroup-id", Usage: "runc-managed container id to sample resource usage from, if any",
}

var runTaskIntervalFlag = cmdline.Flag{
	ID: "runTaskIntervalFlag", Value: &runTaskInterval, DefaultValue: 2 * time.Second,
	Name: "interval", Usage: "poll interval between task_exec iterations",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskNameFlag, runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskPathFlag, runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskConnFlag, runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskArgFlag, runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskCgroupFlag, runTaskCmd)
		cmdManager.RegisterFlagForCmd(&runTaskIntervalFlag, runTaskCmd)
	})
}

var runTaskCmd = &cobra.Command{
	Use:   "run-task",
	Short: "Drive a connector's long-running task_exec loop to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := safetylock.Check(repoRoot); err != nil {
			return err
		}

		drv, closeStore, err := newDriver()
		if err != nil {
			return err
		}
		defer closeStore()

		runner := auxtask.NewRunner()
		iter, err := runner.Run(cmd.Context(), drv, runTaskID, runTaskPath, runTaskConn,
			[]byte(runTaskArg), runTaskCgroup, runTaskInterval)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		fmt.Fprintf(os.Stderr, "task %s done=%v, %d sample(s)\n", runTaskID, iter.Done, len(iter.Samples))
		return enc.Encode(iter)
	},
}
