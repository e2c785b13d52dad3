// Package sandbox implements the sandbox launcher: namespace/overlayfs
// construction confining a connector child to a read-only rootfs with a
// per-process writable overlay, a private /secret mount, and a
// host-shared socket directory. The child enters fresh mount, cgroup,
// IPC, user, PID, and UTS namespaces.
//
// Go cannot run arbitrary code between clone(2) and execve in the child,
// so the launcher self-re-execs (the pattern container runtimes like
// runc use): the parent launches /proc/self/exe with the namespace flags
// on exec.Cmd.SysProcAttr, and a hidden init mode
// (AUTOSCHEMATIC_SANDBOX_INIT=1) performs the mount/pivot_root sequence
// before calling execve on the real connector binary. See init_linux.go.
package sandbox

import "github.com/autoschematic-sh/autoschematic/internal/config"

// EnvInitSentinel, when set to "1" in the process environment, tells
// cmd/autoschematic's main() to dispatch into RunInit instead of the
// normal CLI -- this process *is* the freshly-cloned sandbox child.
const EnvInitSentinel = "AUTOSCHEMATIC_SANDBOX_INIT"

// EnvInitSpec carries the JSON-encoded InitSpec for the init-mode child.
const EnvInitSpec = "AUTOSCHEMATIC_SANDBOX_SPEC"

// InitSpec is everything the in-namespace init step needs to construct
// the sandbox filesystem and execve the real connector binary. It
// travels from parent to child as JSON in EnvInitSpec, since the
// self-re-exec inherits the parent's environment up to that point.
type InitSpec struct {
	RootfsPath  string            `json:"rootfs_path"`
	RepoPath    string            `json:"repo_path"`
	SocketDir   string            `json:"socket_dir"`  // host's /tmp/autoschematic/, bind-mounted in
	SocketPath  string            `json:"socket_path"` // socket path as seen inside the sandbox
	DumpPath    string            `json:"dump_path"`
	SecretFiles map[string]string `json:"secret_files"` // sandbox-relative path -> plaintext content
	Binary      string            `json:"binary"`
	Args        []string          `json:"args"`
	Shortname   string            `json:"shortname"`
	Prefix      string            `json:"prefix"`
	Env         map[string]string `json:"env"`
}

// commandFor returns the binary path and argument vector for a connector
// spec: spec.Path and spec.Args, unchanged, whatever the spec's Kind.
// Cargo and Python specs are not translated into a binary path here.
func commandFor(spec config.Spec) (string, []string) {
	return spec.Path, spec.Args
}
