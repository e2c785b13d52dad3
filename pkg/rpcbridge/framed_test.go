package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// echoConnector answers just the ops the transport tests exercise and
// errors on everything else.
type echoConnector struct {
	protocol.Connector

	initCalls int
}

func (e *echoConnector) Init(ctx context.Context) error {
	e.initCalls++
	return nil
}

func (e *echoConnector) Version(ctx context.Context) (string, error) { return "1.0.0", nil }

func (e *echoConnector) Filter(ctx context.Context, addr string) (protocol.FilterResult, error) {
	if filepath.Ext(addr) == ".ron" {
		return protocol.FilterResource, nil
	}
	return protocol.FilterNone, nil
}

func (e *echoConnector) Plan(ctx context.Context, addr string, current, desired []byte) ([]protocol.PlanElement, error) {
	if current == nil && desired == nil {
		return nil, nil
	}
	return []protocol.PlanElement{{OpDefinition: fmt.Sprintf("reconcile %s", addr)}}, nil
}

func (e *echoConnector) Get(ctx context.Context, addr string) (*protocol.GetResourceOutput, error) {
	return nil, &protocol.ConnectorError{Op: "get", Addr: addr, Message: "no such resource"}
}

func startFramed(t *testing.T, conn protocol.Connector) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "connector.sock")
	l, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = NewFramedServer(conn).Serve(ctx, l) }()
	return socketPath
}

func TestFramedRoundTrip(t *testing.T) {
	echo := &echoConnector{}
	socketPath := startFramed(t, echo)

	fc, err := DialFramed(context.Background(), socketPath)
	require.NoError(t, err)
	defer fc.Close()
	client := &connectorClient{c: fc}

	require.NoError(t, client.Init(context.Background()))
	require.Equal(t, 1, echo.initCalls)

	v, err := client.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v)

	res, err := client.Filter(context.Background(), "aws/vpc.ron")
	require.NoError(t, err)
	require.Equal(t, protocol.FilterResource, res)

	ops, err := client.Plan(context.Background(), "aws/vpc.ron", nil, []byte("cidr"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "reconcile aws/vpc.ron", ops[0].OpDefinition)

	// current == desired == nil yields an empty op list, not an error.
	ops, err = client.Plan(context.Background(), "aws/vpc.ron", nil, nil)
	require.NoError(t, err)
	require.Empty(t, ops)
}

func TestFramedConnectorErrorPropagates(t *testing.T) {
	socketPath := startFramed(t, &echoConnector{})

	fc, err := DialFramed(context.Background(), socketPath)
	require.NoError(t, err)
	defer fc.Close()
	client := &connectorClient{c: fc}

	_, err = client.Get(context.Background(), "aws/missing.ron")
	require.Error(t, err)
	var cerr *protocol.ConnectorError
	require.ErrorAs(t, err, &cerr)
	require.Contains(t, cerr.Message, "no such resource")
}

func TestFramedSequentialCallsShareOneConnection(t *testing.T) {
	socketPath := startFramed(t, &echoConnector{})

	fc, err := DialFramed(context.Background(), socketPath)
	require.NoError(t, err)
	defer fc.Close()
	client := &connectorClient{c: fc}

	for i := 0; i < 10; i++ {
		v, err := client.Version(context.Background())
		require.NoError(t, err)
		require.Equal(t, "1.0.0", v)
	}
}

func TestDispatchRejectsUnknownOp(t *testing.T) {
	resp := Dispatch(context.Background(), &echoConnector{}, &Request{Op: "bogus"})
	require.NotEmpty(t, resp.Err)
	require.Contains(t, resp.Err, "unknown op")
}

func TestDispatchDecodesArgs(t *testing.T) {
	payload, err := json.Marshal(filterArgs{Addr: "x.ron"})
	require.NoError(t, err)

	resp := Dispatch(context.Background(), &echoConnector{}, &Request{Op: protocol.OpFilter, Payload: payload})
	require.Empty(t, resp.Err)

	var r filterResult
	require.NoError(t, json.Unmarshal(resp.Payload, &r))
	require.Equal(t, protocol.FilterResource, r.Result)
}

func TestOpDeadlineClasses(t *testing.T) {
	require.Equal(t, 100*time.Minute, protocol.OpList.Deadline())
	require.Equal(t, 10*time.Minute, protocol.OpPlan.Deadline())
	require.Equal(t, 10*time.Minute, protocol.OpGet.Deadline())
	require.Equal(t, time.Minute, protocol.OpInit.Deadline())
	require.Equal(t, time.Minute, protocol.OpTaskExec.Deadline())
}
