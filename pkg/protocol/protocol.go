// Package protocol defines the Connector Protocol: the closed set of
// operations every connector must implement, and the request/response
// types exchanged over the RPC bridge.
package protocol

import (
	"context"
	"fmt"
)

// FilterResult classifies a path within a connector's address space.
type FilterResult int

const (
	FilterNone FilterResult = iota
	FilterResource
	FilterConfig
	FilterBundle
	FilterTask
)

func (f FilterResult) String() string {
	switch f {
	case FilterResource:
		return "Resource"
	case FilterConfig:
		return "Config"
	case FilterBundle:
		return "Bundle"
	case FilterTask:
		return "Task"
	default:
		return "None"
	}
}

// OutputMap is a delta: Some(value) inserts/overwrites a key, nil removes it.
type OutputMap map[string]*string

// OutputMapFile is the persisted, fully-resolved form (no deletions).
type OutputMapFile map[string]string

// GetResourceOutput is the result of Connector.Get(addr).
type GetResourceOutput struct {
	ResourceDefinition []byte
	Outputs            OutputMapFile
}

// DocIdentKind discriminates the DocIdent union.
type DocIdentKind int

const (
	DocIdentStruct DocIdentKind = iota
	DocIdentField
	DocIdentEnumVariant
)

// DocIdent is the target of Connector.GetDocstring.
type DocIdent struct {
	Kind   DocIdentKind
	Name   string // Struct.Name, Field.Name, EnumVariant.Name
	Parent string // Field.Parent, EnumVariant.Parent
}

// GetDocOutput carries markdown documentation for one DocIdent.
type GetDocOutput struct {
	Markdown string
}

// PlanElement is one ordered step Connector.Plan returns toward
// reconciling current -> desired.
type PlanElement struct {
	OpDefinition    string
	WritesOutputs   []string
	FriendlyMessage *string
}

// OpExecOutput is the result of executing one PlanElement's op string.
type OpExecOutput struct {
	Outputs         OutputMap
	FriendlyMessage *string
}

// SkeletonOutput is a scaffolding template resource.
type SkeletonOutput struct {
	Addr string
	Body []byte
}

// VirtToPhyKind discriminates the VirtToPhyOutput union.
type VirtToPhyKind int

const (
	VirtToPhyNotPresent VirtToPhyKind = iota
	VirtToPhyDeferred
	VirtToPhyPresent
	VirtToPhyNull
)

// ReadOutput names one `out://addr[key]` reference.
type ReadOutput struct {
	Addr string
	Key  string
}

func (r ReadOutput) String() string {
	return fmt.Sprintf("out://%s[%s]", r.Addr, r.Key)
}

// VirtToPhyOutput is the result of Connector.AddrVirtToPhy.
type VirtToPhyOutput struct {
	Kind  VirtToPhyKind
	Reads []ReadOutput // populated iff Kind == VirtToPhyDeferred
	Path  string       // populated iff Kind == VirtToPhyPresent or VirtToPhyNull
}

// DiagnosticSeverity mirrors LSP-style diagnostic severities.
type DiagnosticSeverity int

const (
	SeverityError DiagnosticSeverity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

// Span is a byte-offset range within a resource body.
type Span struct {
	Start int
	End   int
}

// Diagnostic is one parse-error annotation.
type Diagnostic struct {
	Span     Span
	Severity DiagnosticSeverity
	Message  string
}

// UnbundleElement is one child resource produced by Connector.Unbundle.
type UnbundleElement struct {
	Filename string
	Contents []byte
}

// TaskExecOutput is the result of one Connector.TaskExec iteration.
type TaskExecOutput struct {
	OutputState []byte
	Messages    []string
}

// ConnectorError is a structured, connector-reported failure. It always
// carries a human-readable message and, where known, the op and address
// that produced it.
type ConnectorError struct {
	Op      string
	Addr    string
	Message string
}

func (e *ConnectorError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s(%s): %s", e.Op, e.Addr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Connector is the full set of RPC operations a connector implements.
// Context carries the per-call deadline fixed by op class.
type Connector interface {
	Init(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	Filter(ctx context.Context, addr string) (FilterResult, error)
	Subpaths(ctx context.Context) ([]string, error)
	List(ctx context.Context, subpath string) ([]string, error)
	Get(ctx context.Context, addr string) (*GetResourceOutput, error)
	Plan(ctx context.Context, addr string, current, desired []byte) ([]PlanElement, error)
	OpExec(ctx context.Context, addr, op string) (*OpExecOutput, error)
	AddrVirtToPhy(ctx context.Context, addr string) (*VirtToPhyOutput, error)
	AddrPhyToVirt(ctx context.Context, addr string) (*string, error)
	GetSkeletons(ctx context.Context) ([]SkeletonOutput, error)
	GetDocstring(ctx context.Context, addr string, ident DocIdent) (*GetDocOutput, error)
	Eq(ctx context.Context, addr string, a, b []byte) (bool, error)
	Diag(ctx context.Context, addr string, body []byte) ([]Diagnostic, error)
	Unbundle(ctx context.Context, addr string, body []byte) ([]UnbundleElement, error)
	TaskExec(ctx context.Context, addr string, body, arg, state []byte) (*TaskExecOutput, error)
}
