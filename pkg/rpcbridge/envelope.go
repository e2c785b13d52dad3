// Package rpcbridge implements the two interchangeable RPC transports
// connectors may speak: length-delimited binary framing over a
// Unix-domain socket ("Framed"), and HTTP/2 stream multiplexing over a
// Unix-domain socket via gRPC ("GRPC"). Both carry the same
// request/response envelope and the same per-call-deadline discipline
// (protocol.Op.Deadline()); only the wire encoding and transport differ.
package rpcbridge

import (
	"encoding/json"
	"fmt"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// Request is one RPC call: the op name plus its JSON-encoded arguments.
type Request struct {
	Op      protocol.Op     `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the call's result: either Payload is populated, or Err
// carries a connector-reported or transport-level failure message.
type Response struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     string          `json:"err,omitempty"`
}

func encodeRequest(op protocol.Op, args any) (*Request, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}
	return &Request{Op: op, Payload: b}, nil
}

func decodeInto(resp *Response, out any) error {
	if resp.Err != "" {
		return &protocol.ConnectorError{Message: resp.Err}
	}
	if out == nil {
		return nil
	}
	if len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
