// Package auxtask drives the repeated task_exec iterations of a
// long-running task (the `run-task` verb) and samples the resource
// usage of the connector process carrying it out between iterations.
//
// Resource sampling goes through github.com/containerd/go-runc when the
// connector runs under a runc-managed cgroup; most deployments run
// connectors under plain namespaces instead, so SamplePID treats "not a
// runc-managed id" as the common, non-error case rather than surfacing
// a sampling failure that would abort the task.
package auxtask

import (
	"context"
	"fmt"
	"sync"
	"time"

	runc "github.com/containerd/go-runc"

	"github.com/autoschematic-sh/autoschematic/internal/workflow"
)

// Sample is one point-in-time resource reading for a task's connector
// process.
type Sample struct {
	At            time.Time
	CPUUsageNanos uint64
	MemoryBytes   uint64
	PIDs          uint64
}

// Iteration is one task_exec round trip: the state it produced, the
// messages the connector emitted, and whether the task reports itself
// finished (an iteration returning no further state to carry).
type Iteration struct {
	OutputState []byte
	Messages    []string
	Done        bool
	Samples     []Sample
}

// Runner drives task_exec iterations for a set of concurrently running
// long tasks, keyed by run-task invocation ID (not a connector
// address).
type Runner struct {
	runc *runc.Runc

	mu      sync.Mutex
	running map[string]chan struct{}
}

// NewRunner builds a Runner. The runc command name is looked up lazily
// on first SamplePID call so environments without a runc binary can
// still drive task_exec without resource sampling.
func NewRunner() *Runner {
	return &Runner{
		runc:    &runc.Runc{Command: "runc", LogFormat: runc.JSON},
		running: make(map[string]chan struct{}),
	}
}

// SamplePID best-effort samples cgroup resource usage for a runc-managed
// container id. ok is false, with a nil error, when id is not a
// runc-managed container -- the expected outcome for connectors spawned
// by internal/sandbox's own namespace launcher rather than runc.
func (r *Runner) SamplePID(ctx context.Context, id string) (Sample, bool, error) {
	stats, err := r.runc.Stats(ctx, id)
	if err != nil || stats == nil {
		return Sample{}, false, nil
	}
	return Sample{
		At:            time.Now(),
		CPUUsageNanos: stats.Cpu.Usage.Total,
		MemoryBytes:   stats.Memory.Usage.Usage,
		PIDs:          stats.Pids.Current,
	}, true, nil
}

// Run drives task_exec against path until the connector reports the
// task done or ctx is cancelled, sampling cgroupID's resource usage
// (if any) every interval between iterations. Concurrent callers for the
// same taskID are rejected; Runner tracks one goroutine's worth of state
// per task, not per call.
func (r *Runner) Run(
	ctx context.Context,
	drv *workflow.Driver,
	taskID, path, connectorFilter string,
	arg []byte,
	cgroupID string,
	interval time.Duration,
) (Iteration, error) {
	if err := r.claim(taskID); err != nil {
		return Iteration{}, err
	}
	defer r.release(taskID)

	var result Iteration
	state := []byte(nil)
	first := true

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		out, err := drv.TaskExec(ctx, path, connectorFilter, arg, state)
		if err != nil {
			return result, fmt.Errorf("task_exec(%s) iteration: %w", path, err)
		}
		if out == nil {
			// Deferred or not yet resolvable: wait and retry, unless this
			// was the very first iteration attempted under an expired ctx.
			if first && ctx.Err() != nil {
				return result, ctx.Err()
			}
			first = false
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-ticker.C:
				continue
			}
		}

		state = out.OutputState
		result.OutputState = state
		result.Messages = append(result.Messages, out.Messages...)
		if sample, ok, _ := r.SamplePID(ctx, cgroupID); ok {
			result.Samples = append(result.Samples, sample)
		}
		if len(out.OutputState) == 0 {
			result.Done = true
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) claim(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.running[taskID]; exists {
		return fmt.Errorf("task %s is already running", taskID)
	}
	r.running[taskID] = make(chan struct{})
	return nil
}

func (r *Runner) release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.running[taskID]; ok {
		close(ch)
		delete(r.running, taskID)
	}
}
