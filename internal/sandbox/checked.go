package sandbox

import (
	"context"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// checkedConnector forwards every call to the transport client and, when
// a call fails, asks the handle whether the child still exists. A dead
// child's error dump replaces the transport error, since "connection
// reset" is useless next to the panic message the connector left behind.
type checkedConnector struct {
	h *Handle
	c protocol.Connector
}

// Checked wraps conn so every failed call is followed by a still-alive
// check against h.
func Checked(h *Handle, conn protocol.Connector) protocol.Connector {
	return &checkedConnector{h: h, c: conn}
}

func (cc *checkedConnector) check(err error) error {
	if err == nil {
		return nil
	}
	if deathErr := cc.h.StillAlive(); deathErr != nil {
		return deathErr
	}
	return err
}

func (cc *checkedConnector) Init(ctx context.Context) error {
	return cc.check(cc.c.Init(ctx))
}

func (cc *checkedConnector) Version(ctx context.Context) (string, error) {
	v, err := cc.c.Version(ctx)
	return v, cc.check(err)
}

func (cc *checkedConnector) Filter(ctx context.Context, addr string) (protocol.FilterResult, error) {
	r, err := cc.c.Filter(ctx, addr)
	return r, cc.check(err)
}

func (cc *checkedConnector) Subpaths(ctx context.Context) ([]string, error) {
	p, err := cc.c.Subpaths(ctx)
	return p, cc.check(err)
}

func (cc *checkedConnector) List(ctx context.Context, subpath string) ([]string, error) {
	a, err := cc.c.List(ctx, subpath)
	return a, cc.check(err)
}

func (cc *checkedConnector) Get(ctx context.Context, addr string) (*protocol.GetResourceOutput, error) {
	o, err := cc.c.Get(ctx, addr)
	return o, cc.check(err)
}

func (cc *checkedConnector) Plan(ctx context.Context, addr string, current, desired []byte) ([]protocol.PlanElement, error) {
	e, err := cc.c.Plan(ctx, addr, current, desired)
	return e, cc.check(err)
}

func (cc *checkedConnector) OpExec(ctx context.Context, addr, op string) (*protocol.OpExecOutput, error) {
	o, err := cc.c.OpExec(ctx, addr, op)
	return o, cc.check(err)
}

func (cc *checkedConnector) AddrVirtToPhy(ctx context.Context, addr string) (*protocol.VirtToPhyOutput, error) {
	o, err := cc.c.AddrVirtToPhy(ctx, addr)
	return o, cc.check(err)
}

func (cc *checkedConnector) AddrPhyToVirt(ctx context.Context, addr string) (*string, error) {
	o, err := cc.c.AddrPhyToVirt(ctx, addr)
	return o, cc.check(err)
}

func (cc *checkedConnector) GetSkeletons(ctx context.Context) ([]protocol.SkeletonOutput, error) {
	s, err := cc.c.GetSkeletons(ctx)
	return s, cc.check(err)
}

func (cc *checkedConnector) GetDocstring(ctx context.Context, addr string, ident protocol.DocIdent) (*protocol.GetDocOutput, error) {
	o, err := cc.c.GetDocstring(ctx, addr, ident)
	return o, cc.check(err)
}

func (cc *checkedConnector) Eq(ctx context.Context, addr string, a, b []byte) (bool, error) {
	eq, err := cc.c.Eq(ctx, addr, a, b)
	return eq, cc.check(err)
}

func (cc *checkedConnector) Diag(ctx context.Context, addr string, body []byte) ([]protocol.Diagnostic, error) {
	d, err := cc.c.Diag(ctx, addr, body)
	return d, cc.check(err)
}

func (cc *checkedConnector) Unbundle(ctx context.Context, addr string, body []byte) ([]protocol.UnbundleElement, error) {
	e, err := cc.c.Unbundle(ctx, addr, body)
	return e, cc.check(err)
}

func (cc *checkedConnector) TaskExec(ctx context.Context, addr string, body, arg, state []byte) (*protocol.TaskExecOutput, error) {
	o, err := cc.c.TaskExec(ctx, addr, body, arg, state)
	return o, cc.check(err)
}

var _ protocol.Connector = (*checkedConnector)(nil)
