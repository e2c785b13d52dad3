// Package report defines the PlanReport/ApplyReport shapes the workflow
// engine produces and internal/planstore persists.
package report

import "github.com/autoschematic-sh/autoschematic/pkg/protocol"

// PlanReport is the outcome of planning one resource address: either a
// list of ops to reconcile current -> desired, or a non-empty
// MissingOutputs when the resource's out://addr[key] references could
// not all be resolved yet.
type PlanReport struct {
	Prefix         string
	Shortname      string
	VirtAddr       string
	ConnectorOps   []protocol.PlanElement
	MissingOutputs []protocol.ReadOutput

	// FullyApplied marks a plan report that apply has already consumed
	// in full; workflow's Driver.Apply checks this on the report loaded
	// from internal/planstore before re-executing a report it already ran.
	FullyApplied bool
}

// Deferred reports whether this plan could not proceed because of
// unresolved output references.
func (r *PlanReport) Deferred() bool { return len(r.MissingOutputs) > 0 }

// Empty reports whether this plan has no ops to execute (current ==
// desired, or the resource does not exist either side).
func (r *PlanReport) Empty() bool { return len(r.ConnectorOps) == 0 }

// ApplyReport is the outcome of applying one PlanReport's ops in order.
type ApplyReport struct {
	Outputs    []*protocol.OpExecOutput
	WroteFiles []string

	// Success is false when an op_exec call failed partway through the
	// plan's op sequence; the caller still has every op executed before
	// the failure reflected in Outputs/WroteFiles.
	Success bool
	Err     string
}

// PullReport is the outcome of pulling one resource's remote state into
// the repo.
type PullReport struct {
	Prefix     string
	Shortname  string
	VirtAddr   string
	Updated    bool
	Deleted    bool
	WroteFiles []string
}
