//go:build linux

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/fs/overlay"
	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/rootless"
)

// RunInit performs the in-namespace half of the sandbox construction: it
// assumes the calling process has already been cloned into new
// mount/cgroup/IPC/user/PID/UTS namespaces by Launch (see
// launch_linux.go), switches to the namespace root uid/gid that Launch
// mapped, builds the overlayed
// rootfs, pivots into it, and execve's the real connector binary. It
// never returns on success -- on any failure it writes the error to the
// spec's DumpPath and exits nonzero, since the host reads that file to
// report the cause of death.
//
// cmd/autoschematic's main() calls this instead of the normal CLI
// whenever EnvInitSentinel is set in the environment.
func RunInit() {
	specJSON := os.Getenv(EnvInitSpec)
	var spec InitSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		fatal(spec, errors.Wrap(err, "decoding sandbox spec"))
	}
	if err := runInit(spec); err != nil {
		fatal(spec, err)
	}
}

func fatal(spec InitSpec, err error) {
	if spec.DumpPath != "" {
		_ = os.WriteFile(spec.DumpPath, []byte(err.Error()), 0o600)
	}
	fmt.Fprintln(os.Stderr, "autoschematic sandbox init:", err)
	os.Exit(1)
}

func runInit(spec InitSpec) error {
	// The UID/GID mapping (namespace root <-> host uid/gid, setgroups
	// denied) is already installed by Launch through SysProcAttr, and a
	// user namespace's maps can be written only once, so the child only
	// switches to namespace root here.
	if err := unix.Setresuid(0, 0, 0); err != nil {
		return errors.Wrap(err, "setresuid(0,0,0)")
	}
	if err := unix.Setresgid(0, 0, 0); err != nil {
		return errors.Wrap(err, "setresgid(0,0,0)")
	}

	rootfs := spec.RootfsPath

	// pivot_root requires new_root to be a mount point: bind-mount it onto
	// itself.
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND, ""); err != nil {
		return errors.Wrap(err, "bind-mounting rootfs onto itself")
	}

	// Writable tmpfs overlay over the whole rootfs.
	if err := bindMountWithOverlay(rootfs, rootfs, rootfs); err != nil {
		return errors.Wrap(err, "overlaying rootfs")
	}

	// Separate overlay for the target repo, mounted at /repo so the
	// connector may mutate it without disturbing sibling connectors.
	repoMount := filepath.Join(rootfs, "repo")
	if err := overlay.EnsureOverlayDir(repoMount, true, 0o755); err != nil {
		return errors.Wrap(err, "creating /repo mount point")
	}
	if err := bindMountWithOverlay(rootfs, spec.RepoPath, repoMount); err != nil {
		return errors.Wrap(err, "overlaying repo")
	}

	// /secret: 0700 tmpfs populated with unsealed sealed-secret plaintext.
	secretMount := filepath.Join(rootfs, "secret")
	if err := overlay.EnsureOverlayDir(secretMount, true, 0o700); err != nil {
		return errors.Wrap(err, "creating /secret mount point")
	}
	if err := unix.Mount("tmpfs", secretMount, "tmpfs", 0, "size=64m,mode=0700"); err != nil {
		return errors.Wrap(err, "mounting /secret tmpfs")
	}
	for relPath, contents := range spec.SecretFiles {
		full := filepath.Join(secretMount, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
			return fmt.Errorf("creating secret dir for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, []byte(contents), 0o600); err != nil {
			return fmt.Errorf("writing secret %s: %w", relPath, err)
		}
	}

	// /tmp: fresh tmpfs, with the host's shared socket directory bind-
	// mounted in so the RPC socket is reachable from both sides.
	tmpMount := filepath.Join(rootfs, "tmp")
	if err := overlay.EnsureOverlayDir(tmpMount, true, 0o755); err != nil {
		return errors.Wrap(err, "creating /tmp mount point")
	}
	if err := unix.Mount("tmpfs", tmpMount, "tmpfs", 0, ""); err != nil {
		return errors.Wrap(err, "mounting /tmp tmpfs")
	}
	sandboxSocketDir := filepath.Join(tmpMount, filepath.Base(spec.SocketDir))
	if err := overlay.EnsureOverlayDir(sandboxSocketDir, true, 0o755); err != nil {
		return errors.Wrap(err, "creating sandboxed socket dir")
	}
	if err := unix.Mount(spec.SocketDir, sandboxSocketDir, "", unix.MS_BIND, ""); err != nil {
		return errors.Wrap(err, "bind-mounting socket dir")
	}

	oldRoot := filepath.Join(rootfs, ".old_root")
	if err := overlay.EnsureOverlayDir(oldRoot, true, 0o755); err != nil {
		return errors.Wrap(err, "creating old-root mount point")
	}
	if err := unix.PivotRoot(rootfs, oldRoot); err != nil {
		return errors.Wrap(err, "pivot_root")
	}
	if err := unix.Chdir("/"); err != nil {
		return errors.Wrap(err, "chdir /")
	}
	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		return errors.Wrap(err, "remounting /proc")
	}
	if err := overlay.DetachMount(context.Background(), "/.old_root"); err != nil {
		return errors.Wrap(err, "detaching old root")
	}
	if err := unix.Chdir("/repo"); err != nil {
		return errors.Wrap(err, "chdir /repo")
	}

	argv := append([]string{spec.Binary}, spec.Args...)
	argv = append(argv, spec.Shortname, spec.Prefix, spec.SocketPath, spec.DumpPath)

	envp := make([]string, 0, len(spec.Env)+3)
	for k, v := range spec.Env {
		envp = append(envp, k+"="+v)
	}
	// Tell the connector it is running inside a sandbox namespace as its
	// mapped uid/gid (always 0/0 here, per the single-entry UidMappings/
	// GidMappings set up by Launch), so rootless.InNS/Getuid/Getgid report
	// correctly instead of inferring from a real (but namespace-local) id.
	envp = append(envp,
		rootless.NSEnv+"=1",
		rootless.UIDEnv+"=0",
		rootless.GIDEnv+"=0",
	)

	if err := unix.Exec(spec.Binary, argv, envp); err != nil {
		return fmt.Errorf("execve(%s): %w", spec.Binary, err)
	}
	return nil // unreachable: Exec replaces the process image on success
}
