package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// Dispatch executes one decoded Request against conn and returns the
// encoded Response. Shared by both transports' server sides so the
// per-op argument (de)serialization lives in exactly one place.
func Dispatch(ctx context.Context, conn protocol.Connector, req *Request) *Response {
	result, err := dispatch(ctx, conn, req)
	if err != nil {
		return &Response{Err: err.Error()}
	}
	return result
}

func dispatch(ctx context.Context, conn protocol.Connector, req *Request) (*Response, error) {
	switch req.Op {
	case protocol.OpInit:
		if err := conn.Init(ctx); err != nil {
			return nil, err
		}
		return encodeResult(nil)

	case protocol.OpVersion:
		v, err := conn.Version(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(versionResult{Version: v})

	case protocol.OpFilter:
		var a filterArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		r, err := conn.Filter(ctx, a.Addr)
		if err != nil {
			return nil, err
		}
		return encodeResult(filterResult{Result: r})

	case protocol.OpSubpaths:
		paths, err := conn.Subpaths(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(subpathsResult{Paths: paths})

	case protocol.OpList:
		var a listArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		addrs, err := conn.List(ctx, a.Subpath)
		if err != nil {
			return nil, err
		}
		return encodeResult(listResult{Addrs: addrs})

	case protocol.OpGet:
		var a getArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		out, err := conn.Get(ctx, a.Addr)
		if err != nil {
			return nil, err
		}
		return encodeResult(getResult{Output: out})

	case protocol.OpPlan:
		var a planArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		elems, err := conn.Plan(ctx, a.Addr, a.Current, a.Desired)
		if err != nil {
			return nil, err
		}
		return encodeResult(planResult{Elements: elems})

	case protocol.OpExec:
		var a opExecArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		out, err := conn.OpExec(ctx, a.Addr, a.Op)
		if err != nil {
			return nil, err
		}
		return encodeResult(opExecResult{Output: out})

	case protocol.OpVirtToPhy:
		var a virtToPhyArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		out, err := conn.AddrVirtToPhy(ctx, a.Addr)
		if err != nil {
			return nil, err
		}
		return encodeResult(virtToPhyResult{Output: out})

	case protocol.OpPhyToVirt:
		var a phyToVirtArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		addr, err := conn.AddrPhyToVirt(ctx, a.Addr)
		if err != nil {
			return nil, err
		}
		return encodeResult(phyToVirtResult{Addr: addr})

	case protocol.OpGetSkeletons:
		sk, err := conn.GetSkeletons(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResult(getSkeletonsResult{Skeletons: sk})

	case protocol.OpGetDocstring:
		var a getDocstringArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		out, err := conn.GetDocstring(ctx, a.Addr, a.Ident)
		if err != nil {
			return nil, err
		}
		return encodeResult(getDocstringResult{Output: out})

	case protocol.OpEq:
		var a eqArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		eq, err := conn.Eq(ctx, a.Addr, a.A, a.B)
		if err != nil {
			return nil, err
		}
		return encodeResult(eqResult{Equal: eq})

	case protocol.OpDiag:
		var a diagArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		diags, err := conn.Diag(ctx, a.Addr, a.Body)
		if err != nil {
			return nil, err
		}
		return encodeResult(diagResult{Diagnostics: diags})

	case protocol.OpUnbundle:
		var a unbundleArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		elems, err := conn.Unbundle(ctx, a.Addr, a.Body)
		if err != nil {
			return nil, err
		}
		return encodeResult(unbundleResult{Elements: elems})

	case protocol.OpTaskExec:
		var a taskExecArgs
		if err := json.Unmarshal(req.Payload, &a); err != nil {
			return nil, err
		}
		out, err := conn.TaskExec(ctx, a.Addr, a.Body, a.Arg, a.State)
		if err != nil {
			return nil, err
		}
		return encodeResult(taskExecResult{Output: out})

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

func encodeResult(v any) (*Response, error) {
	if v == nil {
		return &Response{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &Response{Payload: b}, nil
}
