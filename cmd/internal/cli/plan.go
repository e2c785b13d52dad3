package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	planPrefix    string
	planConnector string
	planSubpath   string
)

var planPrefixFlag = cmdline.Flag{
	ID: "planPrefixFlag", Value: &planPrefix, DefaultValue: "",
	Name: "prefix", ShortHand: "p", Usage: "restrict planning to one configured prefix",
}

var planConnectorFlag = cmdline.Flag{
	ID: "planConnectorFlag", Value: &planConnector, DefaultValue: "",
	Name: "connector", ShortHand: "c", Usage: "restrict planning to one connector shortname",
}

var planSubpathFlag = cmdline.Flag{
	ID: "planSubpathFlag", Value: &planSubpath, DefaultValue: "",
	Name: "subpath", ShortHand: "s", Usage: "plan a single virtual address rather than the whole working set",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(planCmd)
		cmdManager.RegisterFlagForCmd(&planPrefixFlag, planCmd)
		cmdManager.RegisterFlagForCmd(&planConnectorFlag, planCmd)
		cmdManager.RegisterFlagForCmd(&planSubpathFlag, planCmd)
	})
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan the working set (or one resource) against its connectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, closeStore, err := newDriver()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if planSubpath != "" {
			if planPrefix == "" {
				return cmdline.FlagError("--prefix is required when --subpath is set")
			}
			r, err := drv.Plan(ctx, planPrefix, planSubpath, planConnector)
			if err != nil {
				return err
			}
			if r == nil {
				fmt.Fprintf(os.Stderr, "no connector claims %s/%s\n", planPrefix, planSubpath)
				return nil
			}
			return enc.Encode(r)
		}

		reports, err := drv.PlanAll(ctx, planPrefix, planConnector)
		if err != nil {
			return err
		}
		deferred := 0
		for _, r := range reports {
			if r.Deferred() {
				deferred++
			}
		}
		fmt.Fprintf(os.Stderr, "planned %d resource(s), %d deferred\n", len(reports), deferred)
		return enc.Encode(reports)
	},
}
