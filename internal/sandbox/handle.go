package sandbox

import (
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// Status is one connector child's liveness plus a resource snapshot when
// it is alive.
type Status struct {
	Alive    bool
	MemoryKB uint64
	CPUPct   float64
}

// Handle owns one sandboxed connector child process: its PID, socket
// path, and error-dump path. Close kills the process, its negated PID,
// and its process group, then unlinks the socket and dump files.
type Handle struct {
	Shortname string
	Client    protocol.Connector

	pid       int
	socket    string
	errorDump string
	inbox     *Inbox
	transport io.Closer // raw RPC client, closed before the kill

	closeOnce sync.Once
}

// NewHandle constructs a Handle directly, bypassing Launch. Production
// code has no use for this beyond Launch itself; it also lets other
// packages' tests build a Handle around a fake protocol.Connector
// without spawning a real sandboxed process.
func NewHandle(shortname string, client protocol.Connector, pid int, socket, errorDump string) *Handle {
	return &Handle{
		Shortname: shortname,
		Client:    client,
		pid:       pid,
		socket:    socket,
		errorDump: errorDump,
		inbox:     NewInbox(),
	}
}

// Subscribe attaches a new receiver to the child's stdout/stderr line
// stream. Call cancel when done to detach it.
func (h *Handle) Subscribe() (<-chan string, func()) {
	return h.inbox.Subscribe()
}

// Inbox exposes the handle's broadcast inbox so Launch can pump child
// output into it.
func (h *Handle) Inbox() *Inbox { return h.inbox }

// StillAlive checks whether the child process still exists via
// kill(pid, 0). On failure it reads the error-dump file and returns its
// contents as the error.
func (h *Handle) StillAlive() error {
	if err := syscall.Kill(h.pid, 0); err == nil {
		return nil
	}
	b, err := os.ReadFile(h.errorDump)
	if err != nil {
		return &errtypes.ErrChildDied{Shortname: h.Shortname}
	}
	return &errtypes.ErrChildDied{Shortname: h.Shortname, DumpContents: string(b)}
}

// Status reports live resource usage by querying procfs, or Dead if the
// still-alive check fails.
func (h *Handle) Status() Status {
	if err := h.StillAlive(); err != nil {
		return Status{Alive: false}
	}
	mem, cpu, err := readProcStatus(h.pid)
	if err != nil {
		return Status{Alive: true}
	}
	return Status{Alive: true, MemoryKB: mem, CPUPct: cpu}
}

// Close tears down the sandbox: SIGKILL to the PID, the negated PID
// (process group), and an explicit killpg, then removes the socket and
// dump files. Safe to call more than once.
func (h *Handle) Close() error {
	var firstErr error
	h.closeOnce.Do(func() {
		h.inbox.Close()
		if h.transport != nil {
			_ = h.transport.Close()
		} else if closer, ok := h.Client.(io.Closer); ok {
			_ = closer.Close()
		}
		_ = syscall.Kill(h.pid, syscall.SIGKILL)
		_ = syscall.Kill(-h.pid, syscall.SIGKILL)
		if pgid, err := syscall.Getpgid(h.pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
		if err := os.Remove(h.socket); err != nil && !os.IsNotExist(err) {
			firstErr = fmt.Errorf("removing socket %s: %w", h.socket, err)
		}
		if err := os.Remove(h.errorDump); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("removing error dump %s: %w", h.errorDump, err)
		}
	})
	return firstErr
}
