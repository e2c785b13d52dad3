package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/autoschematic-sh/autoschematic/internal/keystore"
	"github.com/autoschematic-sh/autoschematic/pkg/cmdline"
)

var (
	sealDomain string
	sealPrefix string
	sealPath   string
	sealInPath string
	sealKeyID  string
)

var sealDomainFlag = cmdline.Flag{
	ID: "sealDomainFlag", Value: &sealDomain, DefaultValue: "",
	Name: "domain", Usage: "server domain the secret is sealed against",
}

var sealPrefixFlag = cmdline.Flag{
	ID: "sealPrefixFlag", Value: &sealPrefix, DefaultValue: "",
	Name: "prefix", Usage: "prefix the sealed secret belongs to",
}

var sealPathFlag = cmdline.Flag{
	ID: "sealPathFlag", Value: &sealPath, DefaultValue: "",
	Name: "path", Usage: "relative path under <prefix>/.secrets/ (starting with the connector shortname) to write, without the .sealed suffix",
}

var sealInPathFlag = cmdline.Flag{
	ID: "sealInPathFlag", Value: &sealInPath, DefaultValue: "",
	Name: "in-path", Usage: "plaintext file to seal (default: read stdin)",
}

var sealKeyIDFlag = cmdline.Flag{
	ID: "sealKeyIDFlag", Value: &sealKeyID, DefaultValue: "default",
	Name: "key-id", Usage: "keystore keypair id to seal against",
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(sealCmd)
		cmdManager.RegisterFlagForCmd(&sealDomainFlag, sealCmd)
		cmdManager.RegisterFlagForCmd(&sealPrefixFlag, sealCmd)
		cmdManager.RegisterFlagForCmd(&sealPathFlag, sealCmd)
		cmdManager.RegisterFlagForCmd(&sealInPathFlag, sealCmd)
		cmdManager.RegisterFlagForCmd(&sealKeyIDFlag, sealCmd)
	})
}

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal a plaintext secret into <prefix>/.secrets/<path>.sealed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sealDomain == "" || sealPrefix == "" || sealPath == "" {
			return cmdline.FlagError("--domain, --prefix, and --path are required")
		}
		if keystoreURI == "" {
			return cmdline.FlagError("--keystore (or AUTOSCHEMATIC_KEYSTORE) must name a keystore to seal against")
		}

		ks, err := keystore.FromURI(keystoreURI)
		if err != nil {
			return fmt.Errorf("opening keystore: %w", err)
		}

		var plaintext []byte
		if sealInPath != "" {
			plaintext, err = os.ReadFile(sealInPath)
		} else {
			plaintext, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading plaintext: %w", err)
		}

		sealed, err := ks.Seal(sealDomain, sealKeyID, string(plaintext))
		if err != nil {
			return fmt.Errorf("sealing secret: %w", err)
		}

		outPath := filepath.Join(repoRoot, sealPrefix, ".secrets", sealPath+".sealed")
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("creating secrets directory: %w", err)
		}
		// Sealed files hold an array, the shape the keystore readers
		// expect; readers use the first entry. A re-seal overwrites the
		// file with a new one-element array.
		body, err := json.MarshalIndent([]*keystore.SealedSecret{sealed}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding sealed secret: %w", err)
		}
		if err := os.WriteFile(outPath, body, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}

		fmt.Fprintf(os.Stderr, "sealed secret written to %s\n", outPath)
		return nil
	},
}
