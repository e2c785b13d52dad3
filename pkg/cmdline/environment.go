package cmdline

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/autoschematic-sh/autoschematic/internal/logging"
)

// EnvHandler applies an environment variable's value to a flag.
type EnvHandler func(*pflag.Flag, string) error

// EnvSetValue is the default EnvHandler: set the flag from the
// environment value unless the user already set it on the command line
// (explicit flags win over environment).
func EnvSetValue(flag *pflag.Flag, envValue string) error {
	if flag.Changed {
		logging.Debugf("flag --%s already set on the command line, ignoring environment override", flag.Name)
		return nil
	}
	if err := flag.Value.Set(envValue); err != nil {
		return fmt.Errorf("unable to set flag %s to value %s: %w", flag.Name, envValue, err)
	}
	flag.Changed = true
	return nil
}
