package rpcbridge

import (
	"context"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// caller is satisfied by both FramedClient and GRPCClient: issue one RPC
// call, encoding args and decoding into out, honoring the op's fixed
// per-call deadline.
type caller interface {
	call(ctx context.Context, op protocol.Op, args, out any) error
}

// connectorClient implements protocol.Connector by forwarding every
// method to the underlying transport's caller, so workflow/connectorcache
// code never needs to know which transport a connector was launched with.
type connectorClient struct{ c caller }

func (c *connectorClient) Init(ctx context.Context) error {
	return c.c.call(ctx, protocol.OpInit, struct{}{}, nil)
}

func (c *connectorClient) Version(ctx context.Context) (string, error) {
	var r versionResult
	err := c.c.call(ctx, protocol.OpVersion, struct{}{}, &r)
	return r.Version, err
}

func (c *connectorClient) Filter(ctx context.Context, addr string) (protocol.FilterResult, error) {
	var r filterResult
	err := c.c.call(ctx, protocol.OpFilter, filterArgs{Addr: addr}, &r)
	return r.Result, err
}

func (c *connectorClient) Subpaths(ctx context.Context) ([]string, error) {
	var r subpathsResult
	err := c.c.call(ctx, protocol.OpSubpaths, struct{}{}, &r)
	return r.Paths, err
}

func (c *connectorClient) List(ctx context.Context, subpath string) ([]string, error) {
	var r listResult
	err := c.c.call(ctx, protocol.OpList, listArgs{Subpath: subpath}, &r)
	return r.Addrs, err
}

func (c *connectorClient) Get(ctx context.Context, addr string) (*protocol.GetResourceOutput, error) {
	var r getResult
	err := c.c.call(ctx, protocol.OpGet, getArgs{Addr: addr}, &r)
	return r.Output, err
}

func (c *connectorClient) Plan(ctx context.Context, addr string, current, desired []byte) ([]protocol.PlanElement, error) {
	var r planResult
	err := c.c.call(ctx, protocol.OpPlan, planArgs{Addr: addr, Current: current, Desired: desired}, &r)
	return r.Elements, err
}

func (c *connectorClient) OpExec(ctx context.Context, addr, op string) (*protocol.OpExecOutput, error) {
	var r opExecResult
	err := c.c.call(ctx, protocol.OpExec, opExecArgs{Addr: addr, Op: op}, &r)
	return r.Output, err
}

func (c *connectorClient) AddrVirtToPhy(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
	var r virtToPhyResult
	err := c.c.call(ctx, protocol.OpVirtToPhy, virtToPhyArgs{Addr: addr}, &r)
	return r.Output, err
}

func (c *connectorClient) AddrPhyToVirt(ctx context.Context, addr string) (*string, error) {
	var r phyToVirtResult
	err := c.c.call(ctx, protocol.OpPhyToVirt, phyToVirtArgs{Addr: addr}, &r)
	return r.Addr, err
}

func (c *connectorClient) GetSkeletons(ctx context.Context) ([]protocol.SkeletonOutput, error) {
	var r getSkeletonsResult
	err := c.c.call(ctx, protocol.OpGetSkeletons, struct{}{}, &r)
	return r.Skeletons, err
}

func (c *connectorClient) GetDocstring(ctx context.Context, addr string, ident protocol.DocIdent) (*protocol.GetDocOutput, error) {
	var r getDocstringResult
	err := c.c.call(ctx, protocol.OpGetDocstring, getDocstringArgs{Addr: addr, Ident: ident}, &r)
	return r.Output, err
}

func (c *connectorClient) Eq(ctx context.Context, addr string, a, b []byte) (bool, error) {
	var r eqResult
	err := c.c.call(ctx, protocol.OpEq, eqArgs{Addr: addr, A: a, B: b}, &r)
	return r.Equal, err
}

func (c *connectorClient) Diag(ctx context.Context, addr string, body []byte) ([]protocol.Diagnostic, error) {
	var r diagResult
	err := c.c.call(ctx, protocol.OpDiag, diagArgs{Addr: addr, Body: body}, &r)
	return r.Diagnostics, err
}

func (c *connectorClient) Unbundle(ctx context.Context, addr string, body []byte) ([]protocol.UnbundleElement, error) {
	var r unbundleResult
	err := c.c.call(ctx, protocol.OpUnbundle, unbundleArgs{Addr: addr, Body: body}, &r)
	return r.Elements, err
}

func (c *connectorClient) TaskExec(ctx context.Context, addr string, body, arg, state []byte) (*protocol.TaskExecOutput, error) {
	var r taskExecResult
	err := c.c.call(ctx, protocol.OpTaskExec, taskExecArgs{Addr: addr, Body: body, Arg: arg, State: state}, &r)
	return r.Output, err
}

var _ protocol.Connector = (*connectorClient)(nil)
