// Package cli implements the autoschematic command-line surface:
// init, validate, install, seal, plan, apply, import, unbundle,
// run-task, and safety lock/unlock.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/connectorcache"
	"github.com/autoschematic-sh/autoschematic/internal/keystore"
	"github.com/autoschematic-sh/autoschematic/internal/logging"
	"github.com/autoschematic-sh/autoschematic/internal/planstore"
	"github.com/autoschematic-sh/autoschematic/internal/sandbox"
	"github.com/autoschematic-sh/autoschematic/internal/workflow"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

const envPrefix = "AUTOSCHEMATIC_"

// cmdInits holds all the init functions to be called for
// commands/flags registration, so each subcommand file can addCmdInit
// from its own package-level init() without an import cycle back to
// this file.
var cmdInits = make([]func(*cmdline.CommandManager), 0)

func addCmdInit(cmdInit func(*cmdline.CommandManager)) {
	cmdInits = append(cmdInits, cmdInit)
}

// Top level options on the `autoschematic` root command.
var (
	debug   bool
	verbose bool
	quiet   bool
	silent  bool

	configFile  string
	repoRoot    string
	rootfsPath  string
	keystoreURI string
	planDBPath  string
)

var debugFlag = cmdline.Flag{
	ID:           "debugFlag",
	Value:        &debug,
	DefaultValue: false,
	Name:         "debug",
	ShortHand:    "d",
	Usage:        "print debugging information (highest verbosity)",
	EnvKeys:      []string{"DEBUG"},
}

var verboseFlag = cmdline.Flag{
	ID:           "verboseFlag",
	Value:        &verbose,
	DefaultValue: false,
	Name:         "verbose",
	ShortHand:    "v",
	Usage:        "print additional information",
	EnvKeys:      []string{"VERBOSE"},
}

var quietFlag = cmdline.Flag{
	ID:           "quietFlag",
	Value:        &quiet,
	DefaultValue: false,
	Name:         "quiet",
	ShortHand:    "q",
	Usage:        "suppress normal output",
	EnvKeys:      []string{"QUIET"},
}

var silentFlag = cmdline.Flag{
	ID:           "silentFlag",
	Value:        &silent,
	DefaultValue: false,
	Name:         "silent",
	ShortHand:    "s",
	Usage:        "only print errors",
	EnvKeys:      []string{"SILENT"},
}

var configFileFlag = cmdline.Flag{
	ID:           "configFileFlag",
	Value:        &configFile,
	DefaultValue: "autoschematic.ron",
	Name:         "config",
	ShortHand:    "c",
	Usage:        "path to the autoschematic.ron config file",
	EnvKeys:      []string{"CONFIG_FILE"},
}

var repoRootFlag = cmdline.Flag{
	ID:           "repoRootFlag",
	Value:        &repoRoot,
	DefaultValue: ".",
	Name:         "repo-root",
	Usage:        "root of the repository autoschematic is managing",
	EnvKeys:      []string{"REPO_ROOT"},
}

var rootfsFlag = cmdline.Flag{
	ID:           "rootfsFlag",
	Value:        &rootfsPath,
	DefaultValue: "",
	Name:         "rootfs",
	Usage:        "path to the read-only rootfs image connectors are sandboxed into",
	EnvKeys:      []string{"ROOTFS"},
}

var keystoreFlag = cmdline.Flag{
	ID:           "keystoreFlag",
	Value:        &keystoreURI,
	DefaultValue: "",
	Name:         "keystore",
	Usage:        "keystore URI used to unseal connector secrets (e.g. ondisk:///path)",
	EnvKeys:      []string{"KEYSTORE"},
}

var planDBFlag = cmdline.Flag{
	ID:           "planDBFlag",
	Value:        &planDBPath,
	DefaultValue: ".autoschematic.plans.db",
	Name:         "plan-db",
	Usage:        "path to the bbolt database holding persisted plan reports",
	EnvKeys:      []string{"PLAN_DB"},
}

func setLogLevel() {
	level := logging.LevelInfo
	switch {
	case debug:
		level = logging.LevelDebug
	case verbose:
		level = logging.LevelVerbose
	case quiet:
		level = logging.LevelQuiet
	case silent:
		level = logging.LevelSilent
	}
	logging.Init(level)
}

func persistentPreRun(*cobra.Command, []string) error {
	setLogLevel()
	return nil
}

// Init initializes and registers all autoschematic commands.
func Init() {
	cmdManager := cmdline.NewCommandManager(rootCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmdManager.UpdateCmdFlagFromEnv(rootCmd, envPrefix); err != nil {
			return fmt.Errorf("parsing global environment variables: %w", err)
		}
		if err := cmdManager.UpdateCmdFlagFromEnv(cmd, envPrefix); err != nil {
			return fmt.Errorf("parsing environment variables: %w", err)
		}
		return persistentPreRun(cmd, args)
	}

	cmdManager.RegisterFlagForCmd(&debugFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&verboseFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&quietFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&silentFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&configFileFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&repoRootFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootfsFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&keystoreFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&planDBFlag, rootCmd)

	for _, cmdInit := range cmdInits {
		cmdInit(cmdManager)
	}

	if errs := cmdManager.GetError(); len(errs) > 0 {
		for _, e := range errs {
			logging.Errorf("%s", e)
		}
		fmt.Fprintf(os.Stderr, "command manager reported %d error(s)\n", len(errs))
		os.Exit(1)
	}
}

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "autoschematic",
	Short: "Infrastructure-as-code connector runtime",
	Long: "autoschematic drives a set of connector processes over a sandboxed RPC\n" +
		"protocol to plan, apply, import, and pull the state of resources\n" +
		"addressed under one or more configured repository prefixes.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(*cobra.Command, []string) error {
		return cmdline.CommandError("no subcommand given; run with --help for usage")
	},
}

// RootCmd returns the root autoschematic cobra command.
func RootCmd() *cobra.Command {
	return rootCmd
}

// newDriver opens the configured connector cache, keystore, and plan
// store and builds a workflow.Driver, the single object every mutating
// subcommand drives.
func newDriver() (*workflow.Driver, func() error, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	var ks keystore.KeyStore
	if keystoreURI != "" {
		ks, err = keystore.FromURI(keystoreURI)
		if err != nil {
			return nil, nil, fmt.Errorf("opening keystore: %w", err)
		}
	}

	spawn := func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error) {
		if rootfsPath == "" {
			return nil, fmt.Errorf("--rootfs (or %sROOTFS) must name a rootfs image to sandbox connectors into", envPrefix)
		}
		return sandbox.Launch(ctx, shortname, prefix, repoRoot, rootfsPath, spec, env, ks)
	}

	cache := connectorcache.New(spawn, ks)

	plans, err := planstore.Open(planDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening plan store: %w", err)
	}

	drv := workflow.NewDriver(cfg, cache, plans)
	return drv, plans.Close, nil
}

// contextWithInterrupt returns a context cancelled on the first Ctrl-C,
// and a stop func to release the signal handler early.
func contextWithInterrupt() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}

// Execute adds all child commands to the root command, sets flags
// appropriately, and runs it. Called by main.main().
func Execute() {
	Init()

	ctx, cancel := contextWithInterrupt()
	defer cancel()

	args := os.Args
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		subCmd, _, subErr := rootCmd.Find(args[1:])
		if subErr != nil || subCmd == nil {
			subCmd = rootCmd
		}
		switch err.(type) {
		case cmdline.FlagError:
			fmt.Fprintf(os.Stderr, "error for command %q: %s\n\n%s\n", subCmd.Name(), err, subCmd.UsageString())
		case cmdline.CommandError:
			fmt.Fprintln(os.Stderr, subCmd.UsageString())
		default:
			fmt.Fprintf(os.Stderr, "error for command %q: %s\n\n%s\n", subCmd.Name(), err, subCmd.UsageString())
		}

		if ctx.Err() != nil && strings.Contains(err.Error(), context.Canceled.Error()) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
