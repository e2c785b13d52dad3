package cmdline

import "github.com/spf13/cobra"

// CommandManager wires cobra.Command trees together with the typed Flag
// registration flagManager already implements, collecting any
// registration errors so callers can report them all at once instead of
// failing on the first one.
type CommandManager struct {
	*flagManager
	rootCmd *cobra.Command
	errs    []error
}

// NewCommandManager builds a CommandManager rooted at rootCmd.
func NewCommandManager(rootCmd *cobra.Command) *CommandManager {
	return &CommandManager{
		flagManager: newFlagManager(),
		rootCmd:     rootCmd,
	}
}

// RegisterCmd adds cmd as a direct child of the root command.
func (m *CommandManager) RegisterCmd(cmd *cobra.Command) {
	m.rootCmd.AddCommand(cmd)
}

// RegisterSubCmd adds child as a subcommand of parent.
func (m *CommandManager) RegisterSubCmd(parent, child *cobra.Command) {
	parent.AddCommand(child)
}

// RegisterFlagForCmd registers flag against each of cmds, recording any
// error instead of returning it -- callers check GetError once, after
// every cmdInit has run.
func (m *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) {
	if err := m.registerFlagForCmd(flag, cmds...); err != nil {
		m.errs = append(m.errs, err)
	}
}

// UpdateCmdFlagFromEnv applies environment-variable overrides (under
// prefix) to every flag registered on cmd.
func (m *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, prefix string) error {
	return m.updateCmdFlagFromEnv(cmd, prefix)
}

// GetError returns every registration error collected so far.
func (m *CommandManager) GetError() []error {
	return m.errs
}

// CommandError marks a failure in command dispatch itself (wrong verb,
// missing subcommand) as distinct from a flag or runtime error, so the
// top-level error handler can print usage instead of a bare message.
type CommandError string

func (e CommandError) Error() string { return string(e) }

// FlagError marks a failure parsing or validating a flag's value.
type FlagError string

func (e FlagError) Error() string { return string(e) }
