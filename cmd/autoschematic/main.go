package main

import (
	"os"

	"github.com/autoschematic-sh/autoschematic/internal/sandbox"

	"github.com/autoschematic-sh/autoschematic/cmd/internal/cli"
)

func main() {
	// A re-exec of this same binary under the sandbox launcher lands
	// here with AUTOSCHEMATIC_SANDBOX_INIT set; it never returns on
	// success (see internal/sandbox.RunInit).
	if os.Getenv(sandbox.EnvInitSentinel) != "" {
		sandbox.RunInit()
		return
	}

	cli.Execute()
}
