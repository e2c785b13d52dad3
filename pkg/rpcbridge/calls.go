package rpcbridge

import "github.com/autoschematic-sh/autoschematic/pkg/protocol"

// Argument/result structs for each protocol op, shared by both transports
// and by the client/server dispatch tables below.

type filterArgs struct{ Addr string }
type filterResult struct{ Result protocol.FilterResult }

type listArgs struct{ Subpath string }
type listResult struct{ Addrs []string }

type getArgs struct{ Addr string }
type getResult struct{ Output *protocol.GetResourceOutput }

type planArgs struct {
	Addr             string
	Current, Desired []byte
}
type planResult struct{ Elements []protocol.PlanElement }

type opExecArgs struct{ Addr, Op string }
type opExecResult struct{ Output *protocol.OpExecOutput }

type virtToPhyArgs struct{ Addr string }
type virtToPhyResult struct{ Output *protocol.VirtToPhyOutput }

type phyToVirtArgs struct{ Addr string }
type phyToVirtResult struct{ Addr *string }

type getDocstringArgs struct {
	Addr  string
	Ident protocol.DocIdent
}
type getDocstringResult struct{ Output *protocol.GetDocOutput }

type eqArgs struct {
	Addr string
	A, B []byte
}
type eqResult struct{ Equal bool }

type diagArgs struct {
	Addr string
	Body []byte
}
type diagResult struct{ Diagnostics []protocol.Diagnostic }

type unbundleArgs struct {
	Addr string
	Body []byte
}
type unbundleResult struct{ Elements []protocol.UnbundleElement }

type taskExecArgs struct {
	Addr             string
	Body, Arg, State []byte
}
type taskExecResult struct{ Output *protocol.TaskExecOutput }

type versionResult struct{ Version string }
type subpathsResult struct{ Paths []string }
type getSkeletonsResult struct{ Skeletons []protocol.SkeletonOutput }
