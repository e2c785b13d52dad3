//go:build linux

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/google/uuid"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
	"github.com/autoschematic-sh/autoschematic/internal/keystore"
	"github.com/autoschematic-sh/autoschematic/internal/logging"
	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/fs/overlay"
	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/shell"
	"github.com/autoschematic-sh/autoschematic/pkg/rpcbridge"
	"github.com/autoschematic-sh/autoschematic/pkg/util/namespaces"
)

// socketRoot is the host-shared directory bind-mounted into every
// sandbox at /tmp/autoschematic/ so RPC sockets are reachable from both
// sides.
const socketRoot = "/tmp/autoschematic"

func randomName(ext string) string {
	return uuid.NewString() + ext
}

// RandomSocketPath returns a fresh <random>.sock path under the shared
// socket root (/tmp/autoschematic).
func RandomSocketPath() string {
	return filepath.Join(socketRoot, randomName(".sock"))
}

// RandomDumpPath returns a fresh <random>.dump path under the shared
// socket root, so it is reachable from both host and sandbox.
func RandomDumpPath() string {
	return filepath.Join(socketRoot, randomName(".dump"))
}

// Launch spawns a connector binary confined by Linux namespaces.
// rootfsPath is a pre-built read-only rootfs image directory; repoPath
// is the target repository directory bind-mounted at /repo inside the
// sandbox.
func Launch(
	ctx context.Context,
	shortname, prefix, repoPath, rootfsPath string,
	spec config.Spec,
	env map[string]string,
	ks keystore.KeyStore,
) (*Handle, error) {
	// Fail fast with a clear diagnosis rather than an opaque mount()
	// error deep inside the cloned child if this kernel can't support an
	// unprivileged user-namespaced overlay at all.
	if supported, err := overlay.UnprivOverlaysSupported(); err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "overlay support check", Err: err}
	} else if !supported {
		return nil, &errtypes.ErrSandbox{Stage: "overlay support check", Err: overlay.ErrNoRootlessOverlay}
	}

	if err := os.MkdirAll(socketRoot, 0o755); err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "socket root", Err: err}
	}

	rootfsPath, err := overlay.AbsOverlay(rootfsPath)
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "resolve rootfs path", Err: err}
	}
	repoPath, err = overlay.AbsOverlay(repoPath)
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "resolve repo path", Err: err}
	}

	socketPath := RandomSocketPath()
	dumpPath := RandomDumpPath()

	resolvedEnv := env
	if ks != nil {
		unsealed, err := ks.UnsealEnvMap(env)
		if err != nil {
			return nil, &errtypes.ErrSandbox{Stage: "unseal env", Err: err}
		}
		resolvedEnv = unsealed
	}

	secretFiles, err := collectSealedSecrets(ks, prefix, shortname)
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "collect secrets", Err: err}
	}

	binary, args := commandFor(spec)
	logging.Debugf("sandbox %s/%s: launching %s %s", prefix, shortname, binary, shell.ArgsQuoted(args))

	initSpec := InitSpec{
		RootfsPath:  rootfsPath,
		RepoPath:    repoPath,
		SocketDir:   socketRoot,
		SocketPath:  socketPath,
		DumpPath:    dumpPath,
		SecretFiles: secretFiles,
		Binary:      binary,
		Args:        args,
		Shortname:   shortname,
		Prefix:      prefix,
		Env:         resolvedEnv,
	}
	specJSON, err := json.Marshal(initSpec)
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "encode spec", Err: err}
	}

	self, err := os.Executable()
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "resolve self", Err: err}
	}

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), EnvInitSentinel+"=1", EnvInitSpec+"="+string(specJSON))

	// Child stdout/stderr feed the handle's broadcast inbox so every
	// subscriber observes connector output lines as they arrive.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "stderr pipe", Err: err}
	}

	// HostUID resolves through any user namespace autoschematic itself is
	// already running in (e.g. launched inside a CI container), so the
	// sandbox's uid mapping is anchored to the real host identity rather
	// than a remapped one.
	hostUID, err := namespaces.HostUID()
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "uid cast", Err: err}
	}
	hostGID, err := safecast.ToUint32(os.Getegid())
	if err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "gid cast", Err: err}
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS |
			syscall.CLONE_NEWCGROUP |
			syscall.CLONE_NEWIPC |
			syscall.CLONE_NEWUSER |
			syscall.CLONE_NEWPID |
			syscall.CLONE_NEWUTS,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: int(hostUID), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: int(hostGID), Size: 1},
		},
		GidMappingsEnableSetgroups: false,
	}

	if err := cmd.Start(); err != nil {
		return nil, &errtypes.ErrSandbox{Stage: "clone", Err: err}
	}

	pid := cmd.Process.Pid
	handle := NewHandle(shortname, nil, pid, socketPath, dumpPath)

	go handle.Inbox().Pump(stdout)
	go handle.Inbox().Pump(stderr)

	// Reap the process asynchronously so it doesn't become a zombie once
	// it exits; errors surface to callers via StillAlive()/the error dump.
	go func() { _ = cmd.Wait() }()

	// The child still has to finish the namespace/overlay construction
	// and bind its socket before a dial can succeed.
	if err := waitForSocket(ctx, handle, socketPath); err != nil {
		_ = handle.Close()
		return nil, &errtypes.ErrSandbox{Stage: "await connector socket", Err: err}
	}

	client, err := rpcbridge.Dial(ctx, spec.Transport, socketPath)
	if err != nil {
		_ = handle.Close()
		return nil, &errtypes.ErrSandbox{Stage: "dial connector", Err: fmt.Errorf("socket %s: %w", socketPath, err)}
	}
	handle.transport = client
	handle.Client = Checked(handle, client)

	return handle, nil
}

// socketWaitTimeout bounds how long Launch waits for a freshly cloned
// child to bind its RPC socket.
const socketWaitTimeout = 30 * time.Second

func waitForSocket(ctx context.Context, handle *Handle, socketPath string) error {
	deadline := time.Now().Add(socketWaitTimeout)
	for {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		if err := handle.StillAlive(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("connector did not bind %s within %s", socketPath, socketWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func collectSealedSecrets(ks keystore.KeyStore, prefix, shortname string) (map[string]string, error) {
	if ks == nil {
		return nil, nil
	}
	return ks.UnsealSecretsFor(prefix, shortname)
}
