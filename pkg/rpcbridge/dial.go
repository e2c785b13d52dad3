package rpcbridge

import (
	"context"
	"fmt"
	"io"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// Client is a protocol.Connector with an additional Close, returned by
// Dial so callers (internal/sandbox's Handle) can tear the transport
// down without caring which one they got.
type Client interface {
	protocol.Connector
	io.Closer
}

type framedHandle struct {
	*connectorClient
	fc *FramedClient
}

func (h *framedHandle) Close() error { return h.fc.Close() }

type grpcHandle struct {
	*connectorClient
	gc *GRPCClient
}

func (h *grpcHandle) Close() error { return h.gc.Close() }

// Dial connects to a connector listening on socketPath, speaking the
// transport named by kind, and returns it wrapped as a protocol.Connector.
func Dial(ctx context.Context, kind config.TransportKind, socketPath string) (Client, error) {
	switch kind {
	case config.TransportTarpc, "":
		fc, err := DialFramed(ctx, socketPath)
		if err != nil {
			return nil, err
		}
		return &framedHandle{connectorClient: &connectorClient{c: fc}, fc: fc}, nil

	case config.TransportGRPC:
		gc, err := DialGRPC(ctx, socketPath)
		if err != nil {
			return nil, err
		}
		return &grpcHandle{connectorClient: &connectorClient{c: gc}, gc: gc}, nil

	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
