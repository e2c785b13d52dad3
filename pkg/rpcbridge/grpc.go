package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// jsonCodec lets the gRPC transport carry our Request/Response envelopes
// without a .proto/protoc step: autoschematic's wire payloads are plain
// JSON, riding HTTP/2 framing for the stream multiplexing.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) (mem.BufferSlice, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return mem.BufferSlice{mem.NewBuffer(&b, nil)}, nil
}

func (jsonCodec) Unmarshal(data mem.BufferSlice, v any) error {
	if err := json.Unmarshal(data.Materialize(), v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return "autoschematic-json" }

func init() {
	encoding.RegisterCodecV2(jsonCodec{})
}

const grpcServiceName = "autoschematic.Connector"
const grpcMethodName = "Call"
const grpcFullMethod = "/" + grpcServiceName + "/" + grpcMethodName

// GRPCClient is the client side of the gRPC-over-Unix-domain-socket
// transport: one ClientConn, one unary RPC per protocol op, all
// multiplexed by HTTP/2.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to a connector's Unix-domain socket using the gRPC
// transport.
func DialGRPC(ctx context.Context, socketPath string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(
		"unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (g *GRPCClient) call(ctx context.Context, op protocol.Op, args, out any) error {
	req, err := encodeRequest(op, args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, op.Deadline())
	defer cancel()

	var resp Response
	if err := g.conn.Invoke(ctx, grpcFullMethod, req, &resp); err != nil {
		return fmt.Errorf("rpc %s: %w", op, err)
	}
	return decodeInto(&resp, out)
}

func (g *GRPCClient) Close() error { return g.conn.Close() }

// GRPCServer exposes a connector over the gRPC transport, wrapping it
// behind a single mutex exactly as FramedServer does.
type GRPCServer struct {
	mu   sync.Mutex
	srv  *grpc.Server
	conn protocol.Connector
}

// NewGRPCServer constructs a gRPC-transport server for conn.
func NewGRPCServer(conn protocol.Connector) *GRPCServer {
	s := grpc.NewServer(grpc.ForceServerCodecV2(jsonCodec{}))
	g := &GRPCServer{srv: s, conn: conn}
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: grpcMethodName,
				Handler:    g.handleCall,
			},
		},
		Streams:  nil,
		Metadata: "rpcbridge",
	}, nil)
	return g
}

func (g *GRPCServer) handleCall(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req Request
	if err := dec(&req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	handler := func(ctx context.Context, req any) (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		callCtx, cancel := context.WithTimeout(ctx, req.(*Request).Op.Deadline())
		defer cancel()
		return Dispatch(callCtx, g.conn, req.(*Request)), nil
	}
	if interceptor == nil {
		return handler(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grpcFullMethod}
	return interceptor(ctx, &req, info, handler)
}

// Serve accepts connections on listener until the context is canceled.
func (g *GRPCServer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		g.srv.GracefulStop()
	}()
	if err := g.srv.Serve(listener); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("serving grpc: %w", err)
	}
	return nil
}
